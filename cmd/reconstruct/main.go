package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/event-recon/backend/internal/app"
	"github.com/event-recon/backend/internal/model"
	"github.com/event-recon/backend/pkg/config"
	"github.com/event-recon/backend/pkg/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "reconstruct",
		Short:        "Reconstruct communication timelines around a compliance event",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.AddCommand(newRunCommand())
	return root
}

func newRunCommand() *cobra.Command {
	var (
		configPath string
		eventPath  string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one reconstruction and print the ranked records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, "stderr"); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer logger.Sync()

			event, err := readEvent(eventPath)
			if err != nil {
				return err
			}

			comps, err := app.Build(cfg)
			if err != nil {
				return err
			}
			defer comps.Close()

			result, err := comps.Engine.Reconstruct(cmd.Context(), event)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetEscapeHTML(false)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			renderResult(out, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "config file (default is ./config.yaml)")
	cmd.Flags().StringVar(&eventPath, "event", "", "event JSON file, - for stdin")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON instead of a table")
	_ = cmd.MarkFlagRequired("event")

	return cmd
}

func readEvent(path string) (model.Event, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("failed to read event: %w", err)
	}

	var event model.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return model.Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return event, nil
}
