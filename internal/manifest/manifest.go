// Package manifest records every file a build writes and serializes the
// record as dist/manifest.json.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// FileName is the manifest's name inside the distribution directory.
const FileName = "manifest.json"

// Entry describes one written output.
type Entry struct {
	Stage       string `json:"stage"`
	Source      string `json:"source"` // Slash path relative to the project root.
	Output      string `json:"output"` // Slash path relative to the project root.
	InputBytes  int64  `json:"inputBytes"`
	OutputBytes int64  `json:"outputBytes"`
	SHA256      string `json:"sha256"`
}

// Manifest is the serialized form.
type Manifest struct {
	BuildID    string    `json:"buildId"`
	Target     string    `json:"target"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Entries    []Entry   `json:"entries"`
}

// Recorder collects entries from concurrent stage workers.
type Recorder struct {
	mu      sync.Mutex
	id      string
	target  string
	started time.Time
	entries []Entry
}

// NewRecorder starts a record for one run of target.
func NewRecorder(target string, started time.Time) *Recorder {
	return &Recorder{
		id:      uuid.NewString(),
		target:  target,
		started: started,
	}
}

// BuildID returns the random identifier of this run.
func (r *Recorder) BuildID() string { return r.id }

// Add appends an entry. A nil Recorder ignores the call.
func (r *Recorder) Add(e Entry) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Len returns the number of recorded entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshot returns the manifest with entries sorted by output path, so the
// file is stable across runs regardless of worker scheduling.
func (r *Recorder) Snapshot(finished time.Time) Manifest {
	r.mu.Lock()
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Output != entries[j].Output {
			return entries[i].Output < entries[j].Output
		}
		return entries[i].Stage < entries[j].Stage
	})
	return Manifest{
		BuildID:    r.id,
		Target:     r.target,
		StartedAt:  r.started.UTC(),
		FinishedAt: finished.UTC(),
		Entries:    entries,
	}
}

// WriteFile writes the manifest to dir/manifest.json and returns its path.
func (r *Recorder) WriteFile(dir string, finished time.Time) (string, error) {
	data, err := sonic.MarshalIndent(r.Snapshot(finished), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// Read loads a manifest written by WriteFile.
func Read(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := sonic.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return m, nil
}

// Digest returns the hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
