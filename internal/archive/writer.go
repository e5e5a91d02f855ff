package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/event-recon/backend/internal/model"
)

const maxSuffix = 1000

// Writer dumps reconstruction results as timestamped JSON files. It never
// overwrites an existing file.
type Writer struct {
	dir string
	now func() time.Time
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now}
}

// Write stores result and returns the file path.
func (w *Writer) Write(result *model.Result) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	data, err := encode(result)
	if err != nil {
		return "", err
	}

	base := "result_" + w.now().Format("20060102_150405")
	for n := 0; n < maxSuffix; n++ {
		name := base + ".json"
		if n > 0 {
			name = fmt.Sprintf("%s_%d.json", base, n)
		}
		path := filepath.Join(w.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create result file: %w", err)
		}

		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			return "", fmt.Errorf("failed to write result file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to close result file: %w", err)
		}
		return path, nil
	}

	return "", fmt.Errorf("no free result file name for %s", base)
}

func encode(result *model.Result) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return buf.Bytes(), nil
}
