package labs

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode"
)

// ErrNoLabData is returned when no source yielded any lab id.
var ErrNoLabData = errors.New("no lab data found")

// Sink receives the loaded lab ids.
type Sink interface {
	AddLabs(ctx context.Context, labIDs []string) (int, error)
	ListLabs(ctx context.Context) ([]string, error)
}

// Loader reads the lab reference list from the first local file that exists,
// falling back to a remote CSV.
type Loader struct {
	Files      []string
	RemoteURL  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Load returns the lab ids of the first available source.
func (l *Loader) Load(ctx context.Context) ([]string, error) {
	for _, path := range l.Files {
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to open lab file %s: %w", path, err)
		}
		defer f.Close()

		l.Logger.Info("Loading labs from local file", slog.String("path", path))
		return Parse(f)
	}

	if l.RemoteURL == "" {
		return nil, ErrNoLabData
	}

	l.Logger.Info("Loading labs from remote URL", slog.String("url", l.RemoteURL))
	return l.fetch(ctx)
}

func (l *Loader) fetch(ctx context.Context) ([]string, error) {
	client := l.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.RemoteURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build lab list request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lab list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch lab list: unexpected status %d", resp.StatusCode)
	}

	return Parse(resp.Body)
}

// Bootstrap loads the labs and adds the new ones to sink.
func (l *Loader) Bootstrap(ctx context.Context, sink Sink) error {
	ids, err := l.Load(ctx)
	if err != nil {
		return err
	}

	added, err := sink.AddLabs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to store labs: %w", err)
	}

	all, err := sink.ListLabs(ctx)
	if err != nil {
		return fmt.Errorf("failed to count labs: %w", err)
	}

	l.Logger.Info("Labs loaded",
		slog.Int("added", added),
		slog.Int("total", len(all)),
	)

	return nil
}

// Parse reads lab ids from the first column of a CSV document. A first row
// whose first cell is not alphanumeric or shorter than three characters is
// taken as a header and skipped.
func Parse(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var ids []string
	first := true
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse lab list: %w", err)
		}

		if first {
			first = false
			if len(row) > 0 && looksLikeHeader(strings.TrimSpace(row[0])) {
				continue
			}
		}

		if len(row) == 0 {
			continue
		}
		if id := strings.TrimSpace(row[0]); id != "" {
			ids = append(ids, id)
		}
	}

	if len(ids) == 0 {
		return nil, ErrNoLabData
	}

	return ids, nil
}

func looksLikeHeader(cell string) bool {
	if cell == "" {
		return false
	}
	if len([]rune(cell)) < 3 {
		return true
	}
	for _, r := range cell {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
