package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wallet-credit-lab/internal/ingestion"
	"wallet-credit-lab/internal/pipeline"
	"wallet-credit-lab/internal/storage"
)

// RunSummary is the payload of a run_completed event.
type RunSummary struct {
	RunID            string    `json:"run_id"`
	CreatedAt        time.Time `json:"created_at"`
	Events           int       `json:"events"`
	Wallets          int       `json:"wallets"`
	Anomalies        int       `json:"anomalies"`
	UnmatchedBorrows int       `json:"unmatched_borrows"`
	Degenerate       bool      `json:"degenerate"`
	MinScore         int       `json:"min_score"`
	MaxScore         int       `json:"max_score"`

	// Unchanged is set when the event log produced an already stored run.
	Unchanged bool `json:"unchanged,omitempty"`
}

// Publisher receives completed runs.
type Publisher interface {
	Broadcast(event Event)
}

// RescorerOptions configures a Rescorer.
type RescorerOptions struct {
	Events    storage.EventStore
	Scores    storage.ScoreStore
	Features  storage.FeatureStore // optional
	Pipeline  *pipeline.Pipeline
	Publisher Publisher // optional
	Interval  time.Duration
	Logger    zerolog.Logger
}

// Rescorer periodically scores the full event log and persists the run.
type Rescorer struct {
	opts RescorerOptions
	log  zerolog.Logger

	mu      sync.Mutex
	running bool
	last    *RunSummary
	lastErr error
	lastAt  time.Time
	runs    int
}

// NewRescorer creates a rescorer.
func NewRescorer(opts RescorerOptions) *Rescorer {
	return &Rescorer{
		opts: opts,
		log:  opts.Logger.With().Str("component", "rescorer").Logger(),
	}
}

// Run scores immediately, then every Interval until ctx is cancelled.
// Failed runs are logged and retried on the next tick.
func (r *Rescorer) Run(ctx context.Context) error {
	if r.opts.Interval <= 0 {
		return fmt.Errorf("rescore interval must be positive")
	}
	r.log.Info().Dur("interval", r.opts.Interval).Msg("rescorer started")

	r.tick(ctx)

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Rescorer) tick(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.log.Error().Err(err).Msg("rescoring failed")
	}
}

var (
	// ErrAlreadyRunning is returned by RunOnce while another run is in progress.
	ErrAlreadyRunning = errors.New("rescoring already running")

	// ErrNoEvents is returned by RunOnce when the event log is empty.
	ErrNoEvents = errors.New("event log is empty")
)

// RunOnce loads the event log, scores it, persists the run and publishes a summary.
func (r *Rescorer) RunOnce(ctx context.Context) (*RunSummary, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	r.running = true
	r.mu.Unlock()

	summary, err := r.runOnce(ctx)

	r.mu.Lock()
	r.running = false
	r.lastErr = err
	r.lastAt = time.Now().UTC()
	r.runs++
	if err == nil {
		r.last = summary
	}
	r.mu.Unlock()
	return summary, err
}

func (r *Rescorer) runOnce(ctx context.Context) (*RunSummary, error) {
	events, err := ingestion.LoadStore(ctx, r.opts.Events)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	res, err := r.opts.Pipeline.Run(ctx, events)
	if err != nil {
		return nil, err
	}
	summary := summarize(res)

	err = pipeline.Persist(ctx, res, r.opts.Scores, r.opts.Features)
	switch {
	case errors.Is(err, pipeline.ErrRunExists):
		summary.Unchanged = true
		r.log.Info().Str("run_id", summary.RunID).Msg("event log unchanged since stored run")
		return summary, nil
	case err != nil:
		return nil, err
	}

	r.log.Info().
		Str("run_id", summary.RunID).
		Int("wallets", summary.Wallets).
		Int("anomalies", summary.Anomalies).
		Msg("run persisted")

	if r.opts.Publisher != nil {
		r.opts.Publisher.Broadcast(Event{
			Type:      EventRunCompleted,
			Timestamp: summary.CreatedAt,
			Data:      summary,
		})
	}
	return summary, nil
}

// Status is a snapshot of the rescorer state.
type Status struct {
	Running   bool        `json:"running"`
	Runs      int         `json:"runs"`
	LastRunAt time.Time   `json:"last_run_at"`
	LastError string      `json:"last_error,omitempty"`
	Last      *RunSummary `json:"last,omitempty"`
}

// Status returns the current state.
func (r *Rescorer) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Status{Running: r.running, Runs: r.runs, LastRunAt: r.lastAt, Last: r.last}
	if r.lastErr != nil {
		s.LastError = r.lastErr.Error()
	}
	return s
}

func summarize(res *pipeline.Result) *RunSummary {
	m := res.Metadata
	s := &RunSummary{
		RunID:            m.RunID,
		CreatedAt:        m.CreatedAt,
		Events:           m.Events,
		Wallets:          m.Wallets,
		Anomalies:        m.Anomalies,
		UnmatchedBorrows: m.UnmatchedBorrows,
		Degenerate:       m.Degenerate,
	}
	first := true
	for _, score := range res.Scores {
		if first || score < s.MinScore {
			s.MinScore = score
		}
		if first || score > s.MaxScore {
			s.MaxScore = score
		}
		first = false
	}
	return s
}
