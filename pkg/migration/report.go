package migration

import (
	"fmt"
	"io"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hashicorp-forge/repomigrate/pkg/contentid"
)

// Summary holds the aggregate counts of a run.
type Summary struct {
	Succeeded int           `yaml:"succeeded"`
	Failed    int           `yaml:"failed"`
	Attempts  int           `yaml:"attempts"`
	Duration  time.Duration `yaml:"duration"`
}

// Report collects the results of a run. It is safe for concurrent use.
type Report struct {
	mu         sync.Mutex
	runID      string
	root       string
	startedAt  time.Time
	finishedAt time.Time
	results    []Result
}

// NewReport starts a report for a run over root.
func NewReport(runID, root string) *Report {
	return &Report{runID: runID, root: root, startedAt: time.Now()}
}

// Add appends a result.
func (r *Report) Add(result Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

// Finish stamps the end time.
func (r *Report) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishedAt = time.Now()
}

// Results returns a copy of all results in the order they were recorded.
func (r *Report) Results() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Result, len(r.results))
	copy(out, r.results)
	return out
}

// Failures returns the failed results.
func (r *Report) Failures() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Result
	for _, res := range r.results {
		if !res.Success {
			out = append(out, res)
		}
	}
	return out
}

// Mapping returns legacy to new identifiers for successful results of kind.
func (r *Report) Mapping(kind ItemKind) map[contentid.ID]contentid.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[contentid.ID]contentid.ID)
	for _, res := range r.results {
		if res.Kind == kind && res.Success && !res.OldID.IsZero() {
			out[res.OldID] = res.NewID
		}
	}
	return out
}

// Summary returns the aggregate counts.
func (r *Report) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s Summary
	for _, res := range r.results {
		if res.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
		s.Attempts += res.Attempts
	}
	end := r.finishedAt
	if end.IsZero() {
		end = time.Now()
	}
	s.Duration = end.Sub(r.startedAt)
	return s
}

type reportEntry struct {
	Kind     ItemKind `yaml:"kind"`
	Path     string   `yaml:"path"`
	OldID    string   `yaml:"old_id,omitempty"`
	NewID    string   `yaml:"new_id,omitempty"`
	Success  bool     `yaml:"success"`
	Attempts int      `yaml:"attempts"`
	Error    string   `yaml:"error,omitempty"`
}

type reportDocument struct {
	RunID   string        `yaml:"run_id"`
	Root    string        `yaml:"root"`
	Started time.Time     `yaml:"started"`
	Summary Summary       `yaml:"summary"`
	Results []reportEntry `yaml:"results"`
}

// WriteYAML writes the report as a YAML document.
func (r *Report) WriteYAML(w io.Writer) error {
	summary := r.Summary()

	r.mu.Lock()
	doc := reportDocument{
		RunID:   r.runID,
		Root:    r.root,
		Started: r.startedAt.UTC(),
		Summary: summary,
		Results: make([]reportEntry, 0, len(r.results)),
	}
	for _, res := range r.results {
		e := reportEntry{
			Kind:     res.Kind,
			Path:     res.Path,
			OldID:    res.OldID.String(),
			NewID:    res.NewID.String(),
			Success:  res.Success,
			Attempts: res.Attempts,
		}
		if res.Err != nil {
			e.Error = res.Err.Error()
		}
		doc.Results = append(doc.Results, e)
	}
	r.mu.Unlock()

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}
