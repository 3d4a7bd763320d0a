package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"studentsupport/pkg"
)

// Entry is one audit record for a processed turn or a notable pipeline
// event. Entries are append-only; the pipeline never reads them back.
type Entry struct {
	Timestamp    time.Time         `json:"timestamp"`
	Event        string            `json:"event"`
	SessionID    string            `json:"session_id"`
	TurnID       string            `json:"turn_id,omitempty"`
	Intent       pkg.Intent        `json:"intent,omitempty"`
	TargetAgent  string            `json:"target_agent,omitempty"`
	Priority     pkg.Priority      `json:"priority,omitempty"`
	Confidence   float64           `json:"confidence"`
	UsedFallback bool              `json:"used_fallback,omitempty"`
	Error        string            `json:"error,omitempty"`
	Detail       map[string]string `json:"detail,omitempty"`
}

// Sink receives audit entries. Logging is fire-and-forget from the
// pipeline's perspective: a sink failure must never fail the user-facing
// turn.
type Sink interface {
	Log(entry Entry) error
}

// FileSink appends entries as JSON lines, one file per day.
type FileSink struct {
	mu  sync.Mutex
	dir string
}

// NewFileSink creates the audit directory if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

func (f *FileSink) Log(entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := sonic.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	path := filepath.Join(f.dir, entry.Timestamp.Format("2006-01-02")+".jsonl")

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// NopSink discards entries. Used when auditing is disabled.
type NopSink struct{}

func (NopSink) Log(Entry) error { return nil }
