package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Trade is one submitted order within a cycle.
type Trade struct {
	Symbol     string  `json:"symbol"`
	OrderID    string  `json:"order_id"`
	Qty        float64 `json:"qty"`
	LimitPrice float64 `json:"limit_price"`
	Notional   float64 `json:"notional"`
	DipPct     float64 `json:"dip_pct"`
	Score      float64 `json:"score"`
}

// CycleRecord captures one end-to-end decision cycle for audit and
// offline analysis.
type CycleRecord struct {
	Timestamp     time.Time      `json:"timestamp"`
	Cycle         int            `json:"cycle"`
	Session       string         `json:"session"`
	Equity        float64        `json:"equity"`
	Cash          float64        `json:"cash"`
	PositionValue float64        `json:"position_value"`
	LeverageRatio float64        `json:"leverage_ratio"`
	State         string         `json:"state"`
	BrakeCycles   int            `json:"brake_cycles,omitempty"`
	Qualified     int            `json:"qualified"`
	Executed      int            `json:"executed"`
	Deployed      float64        `json:"deployed,omitempty"`
	Skips         map[string]int `json:"skips,omitempty"`
	Unfunded      []string       `json:"unfunded,omitempty"`
	Trades        []Trade        `json:"trades,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
}

// Writer appends cycle records to day-stamped JSONL files in a
// directory. One line per cycle; a new file starts at each UTC midnight.
type Writer struct {
	dir   string
	nowFn func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

// NewWriter creates the journal directory if needed and returns a
// writer.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		dir = "journal"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	return &Writer{dir: dir, nowFn: time.Now}, nil
}

// Append writes one record as a JSON line, rolling to a new file when
// the UTC day changes.
func (w *Writer) Append(rec *CycleRecord) error {
	if rec == nil {
		return fmt.Errorf("journal: nil record")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = w.nowFn().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	day := rec.Timestamp.UTC().Format("2006-01-02")
	if w.file == nil || day != w.day {
		if w.file != nil {
			w.file.Close()
		}
		path := filepath.Join(w.dir, fmt.Sprintf("cycles_%s.jsonl", day))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("journal: open %s: %w", path, err)
		}
		w.file, w.day = f, day
	}

	if _, err := w.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	return nil
}

// Close flushes and closes the current journal file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
