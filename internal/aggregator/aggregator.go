package aggregator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/event-recon/backend/internal/model"
	"github.com/event-recon/backend/internal/records"
	"github.com/event-recon/backend/pkg/logger"
)

// Fetcher returns the records of one channel.
type Fetcher interface {
	Fetch(ctx context.Context, channel model.Channel, q records.Query) ([]model.Record, error)
}

// Window is the participant set and time range collected for one event.
type Window struct {
	ParticipantIDs []string
	Start          string
	End            string
	Page           int
	Size           int
	Content        bool
}

// Config fixes the collection window. Empty fields are derived from the event.
type Config struct {
	ParticipantIDs []string
	StartTime      string
	EndTime        string
	Page           int
	Size           int
	Content        bool
	Channels       []model.Channel
}

// WindowFor builds the collection window for event. Participants default to
// the event's internal users and the range to the event's calendar day.
func WindowFor(event model.Event, cfg Config) (Window, error) {
	w := Window{
		ParticipantIDs: cfg.ParticipantIDs,
		Start:          cfg.StartTime,
		End:            cfg.EndTime,
		Page:           cfg.Page,
		Size:           cfg.Size,
		Content:        cfg.Content,
	}
	if len(w.ParticipantIDs) == 0 {
		w.ParticipantIDs = event.InternalUsers
	}
	if w.Page <= 0 {
		w.Page = 1
	}
	if w.Size <= 0 {
		w.Size = 100
	}

	if w.Start == "" || w.End == "" {
		t, err := model.ParseTimestamp(event.EventTime)
		if err != nil {
			return Window{}, fmt.Errorf("event time: %w", err)
		}
		day := t.Format("2006-01-02")
		if w.Start == "" {
			w.Start = day + " 00:00:00"
		}
		if w.End == "" {
			w.End = day + " 23:59:59"
		}
	}

	return w, nil
}

type Aggregator struct {
	fetcher  Fetcher
	channels []model.Channel
}

func New(fetcher Fetcher, channels []model.Channel) *Aggregator {
	if len(channels) == 0 {
		channels = model.DefaultChannels
	}
	return &Aggregator{fetcher: fetcher, channels: channels}
}

func (a *Aggregator) Channels() []model.Channel {
	return a.channels
}

// Collect queries every channel concurrently and concatenates the results in
// channel order. Any channel failure fails the collection.
func (a *Aggregator) Collect(ctx context.Context, w Window) ([]model.Record, error) {
	q := records.Query{
		ParticipantIDs: strings.Join(w.ParticipantIDs, ","),
		StartTime:      w.Start,
		EndTime:        w.End,
		Page:           w.Page,
		Size:           w.Size,
		Content:        w.Content,
	}

	perChannel := make([][]model.Record, len(a.channels))

	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range a.channels {
		g.Go(func() error {
			recs, err := a.fetcher.Fetch(gctx, ch, q)
			if err != nil {
				return fmt.Errorf("fetch %s records: %w", ch, err)
			}
			perChannel[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, recs := range perChannel {
		total += len(recs)
	}
	all := make([]model.Record, 0, total)
	for _, recs := range perChannel {
		all = append(all, recs...)
	}

	logger.Info("Records aggregated",
		zap.Int("channels", len(a.channels)),
		zap.Int("participants", len(w.ParticipantIDs)),
		zap.String("start", w.Start),
		zap.String("end", w.End),
		zap.Int("records", len(all)),
	)

	return all, nil
}
