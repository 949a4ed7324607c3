// Package failures keeps a persistent record of papers that failed to compile, so
// that batch runs can retry timeouts and skip papers that cannot succeed.
package failures

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const ledgerFileName = "failures.json"

// Stage 失败阶段
type Stage string

const (
	StageLoad     Stage = "load"      // paper file unreadable
	StageTimeout  Stage = "timeout"   // compiler exceeded its timeout
	StageProcess  Stage = "process"   // compiler could not be run
	StageParse    Stage = "parse"     // compiler output was not JSON
	StageNoOutput Stage = "no_output" // compiler wrote nothing
)

// Retryable reports whether a paper failing at this stage may succeed on a later run
func (s Stage) Retryable() bool {
	switch s {
	case StageTimeout, StageNoOutput, StageProcess:
		return true
	default:
		return false
	}
}

// Record is one failed paper
type Record struct {
	ID         string    `json:"id"`
	Stage      Stage     `json:"stage"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	CanRetry   bool      `json:"can_retry"`
	RetryCount int       `json:"retry_count"`
	LastRetry  time.Time `json:"last_retry"`
}

// Ledger stores failure records in <baseDir>/failures.json
type Ledger struct {
	baseDir string
	mu      sync.RWMutex
	records map[string]*Record
}

// NewLedger opens the ledger in baseDir, creating the directory if needed
func NewLedger(baseDir string) (*Ledger, error) {
	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".arxiv2mathml", "failures")
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create failures directory: %w", err)
	}

	l := &Ledger{
		baseDir: baseDir,
		records: make(map[string]*Record),
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

// Record stores a failure for id. An existing record keeps its retry history.
func (l *Ledger) Record(id string, stage Stage, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	record := &Record{
		ID:        id,
		Stage:     stage,
		Message:   message,
		Timestamp: time.Now(),
		CanRetry:  stage.Retryable(),
	}
	if existing, ok := l.records[id]; ok {
		record.RetryCount = existing.RetryCount
		record.LastRetry = existing.LastRetry
	}
	l.records[id] = record

	return l.save()
}

// IncrementRetry notes another attempt at a recorded paper
func (l *Ledger) IncrementRetry(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if record, ok := l.records[id]; ok {
		record.RetryCount++
		record.LastRetry = time.Now()
		return l.save()
	}
	return fmt.Errorf("failure record not found: %s", id)
}

// Remove drops the record for id, typically after a successful compilation
func (l *Ledger) Remove(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.records[id]; !ok {
		return nil
	}
	delete(l.records, id)
	return l.save()
}

// Get returns a copy of the record for id
func (l *Ledger) Get(id string) (*Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	record, ok := l.records[id]
	if !ok {
		return nil, false
	}
	recordCopy := *record
	return &recordCopy, true
}

// List returns copies of all records sorted by ID
func (l *Ledger) List() []*Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sortedLocked()
}

// ExportIDs writes the ID of every record to outputPath, one per line
func (l *Ledger) ExportIDs(outputPath string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var sb strings.Builder
	for _, record := range l.sortedLocked() {
		sb.WriteString(record.ID)
		sb.WriteString("\n")
	}
	if err := os.WriteFile(outputPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write failure IDs file: %w", err)
	}
	return nil
}

func (l *Ledger) sortedLocked() []*Record {
	records := make([]*Record, 0, len(l.records))
	for _, record := range l.records {
		recordCopy := *record
		records = append(records, &recordCopy)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records
}

func (l *Ledger) load() error {
	data, err := os.ReadFile(filepath.Join(l.baseDir, ledgerFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read failures file: %w", err)
	}

	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to unmarshal failures: %w", err)
	}
	for _, record := range records {
		l.records[record.ID] = record
	}
	return nil
}

func (l *Ledger) save() error {
	data, err := json.MarshalIndent(l.sortedLocked(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal failures: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.baseDir, ledgerFileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write failures file: %w", err)
	}
	return nil
}
