// Package session launches reconciliation runs in the background and keeps
// their persisted session state current.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/roster-cli/internal/collaborator"
	"github.com/sells-group/roster-cli/internal/model"
	"github.com/sells-group/roster-cli/internal/pipeline"
	"github.com/sells-group/roster-cli/internal/store"
)

// ErrRunActive is returned when another run already writes the same output.
var ErrRunActive = eris.New("session: a run is already active for this output")

// StartRequest describes a run to launch.
type StartRequest struct {
	RosterPath string `json:"roster_path"`
	OutputPath string `json:"output_path"`
	// SessionID is generated when empty.
	SessionID string `json:"session_id,omitempty"`
}

// Driver owns the lifecycle of background runs.
type Driver struct {
	store  store.Store
	collab collaborator.Collaborator

	mu   sync.Mutex
	runs map[string]chan struct{}
}

// NewDriver creates a Driver that persists through st.
func NewDriver(st store.Store, collab collaborator.Collaborator) *Driver {
	return &Driver{
		store:  st,
		collab: collab,
		runs:   make(map[string]chan struct{}),
	}
}

// Start creates an in-progress session, takes the output lock and launches
// the run in a goroutine. It returns as soon as the run is launched. The run
// is detached from ctx cancellation.
func (d *Driver) Start(ctx context.Context, req StartRequest) (string, error) {
	if req.RosterPath == "" || req.OutputPath == "" {
		return "", eris.New("session: roster and output paths are required")
	}

	lock := flock.New(req.OutputPath + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return "", eris.Wrap(err, "session: acquire output lock")
	}
	if !ok {
		return "", eris.Wrapf(ErrRunActive, "output %s", req.OutputPath)
	}

	id := req.SessionID
	if id == "" {
		id = uuid.New().String()
	}
	sess := &model.Session{
		ID:            id,
		RosterPath:    req.RosterPath,
		OutputPath:    req.OutputPath,
		Status:        model.SessionInProgress,
		StatusMessage: "Starting validation",
	}
	if err := d.store.CreateSession(ctx, sess); err != nil {
		_ = lock.Unlock()
		return "", eris.Wrap(err, "session: create")
	}

	done := make(chan struct{})
	d.mu.Lock()
	d.runs[id] = done
	d.mu.Unlock()

	go d.run(context.WithoutCancel(ctx), sess, lock, done)

	zap.L().Info("session: run started",
		zap.String("session_id", id),
		zap.String("roster", req.RosterPath),
		zap.String("output", req.OutputPath),
	)
	return id, nil
}

// Wait blocks until the run for id finishes or ctx ends, then returns the
// persisted session.
func (d *Driver) Wait(ctx context.Context, id string) (*model.Session, error) {
	d.mu.Lock()
	done, ok := d.runs[id]
	d.mu.Unlock()

	if ok {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), "session: wait")
		}
	}
	return d.store.GetSession(ctx, id)
}

func (d *Driver) run(ctx context.Context, sess *model.Session, lock *flock.Flock, done chan struct{}) {
	log := zap.L().With(zap.String("session_id", sess.ID))

	defer func() {
		d.mu.Lock()
		delete(d.runs, sess.ID)
		d.mu.Unlock()
		close(done)
	}()
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("session: release output lock", zap.Error(err))
		}
	}()
	defer func() {
		if p := recover(); p != nil {
			log.Error("session: run panicked", zap.Any("panic", p))
			d.fail(ctx, log, sess.ID, fmt.Sprintf("run panicked: %v", p))
		}
	}()

	cb := pipeline.Callbacks{
		Progress: func(ctx context.Context, p model.Progress) error {
			return d.store.UpdateSessionProgress(ctx, sess.ID, p)
		},
		Persist: func(ctx context.Context, results []model.ReconciliationResult) error {
			return d.store.UpsertProviders(ctx, sess.ID, results)
		},
	}

	stats, err := pipeline.RunFile(ctx, d.collab, sess.RosterPath, sess.OutputPath, cb)
	if err != nil {
		log.Error("session: run failed", zap.Error(err))
		d.fail(ctx, log, sess.ID, err.Error())
		return
	}

	if err := d.store.CompleteSession(ctx, sess.ID, stats); err != nil {
		log.Error("session: mark completed", zap.Error(err))
		return
	}
	log.Info("session: run completed",
		zap.Int("total_processed", stats.TotalProcessed),
		zap.Int("hospitals", stats.HospitalsCompleted),
	)
}

func (d *Driver) fail(ctx context.Context, log *zap.Logger, id, msg string) {
	if err := d.store.FailSession(ctx, id, msg); err != nil {
		log.Error("session: mark failed", zap.Error(err))
	}
}
