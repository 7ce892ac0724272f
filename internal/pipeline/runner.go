// Package pipeline runs a roster through the scrape collaborator and the field
// reconciler one hospital at a time, writing each hospital's results as soon
// as they are final.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/roster-cli/internal/collaborator"
	"github.com/sells-group/roster-cli/internal/model"
	"github.com/sells-group/roster-cli/internal/reconcile"
	"github.com/sells-group/roster-cli/internal/roster"
)

const (
	defaultSource      = "Mappls/Google API"
	defaultVerifyError = "Address verification failed"
)

// Sink receives each hospital group's results once they are final.
type Sink interface {
	Append(results []model.ReconciliationResult) error
}

// Callbacks are optional run notifications. Errors and panics raised by a
// callback are logged and never abort the run.
type Callbacks struct {
	// Progress is called while a hospital is in flight and once it is done.
	Progress func(ctx context.Context, p model.Progress) error
	// Persist is called once per hospital group after it reaches the sink.
	Persist func(ctx context.Context, results []model.ReconciliationResult) error
}

// Runner processes hospital groups sequentially.
type Runner struct {
	collab collaborator.Collaborator
	sink   Sink
}

// NewRunner creates a Runner that writes to sink.
func NewRunner(collab collaborator.Collaborator, sink Sink) *Runner {
	return &Runner{collab: collab, sink: sink}
}

// RunFile reads the roster at rosterPath, recreates the CSV output at
// outputPath and runs every hospital group. An unreadable roster fails before
// the output is touched.
func RunFile(ctx context.Context, collab collaborator.Collaborator, rosterPath, outputPath string, cb Callbacks) (model.RunStatistics, error) {
	rows, err := roster.Read(ctx, rosterPath)
	if err != nil {
		return model.RunStatistics{}, eris.Wrap(err, "pipeline: read roster")
	}

	sink, err := CreateCSVSink(outputPath)
	if err != nil {
		return model.RunStatistics{}, err
	}
	defer sink.Close() //nolint:errcheck

	return NewRunner(collab, sink).RunIncremental(ctx, rows, cb)
}

// RunIncremental groups rows by hospital and validates each group in
// first-seen order. Collaborator failures and comparison errors degrade the
// affected group to "human verification needed" and the run continues. A
// sink write failure stops the run; groups written before it stay in the
// output exactly once.
func (r *Runner) RunIncremental(ctx context.Context, rows []roster.Row, cb Callbacks) (model.RunStatistics, error) {
	groups := reconcile.GroupByHospital(rows)
	total := len(groups)

	log := zap.L().With(zap.Int("hospitals", total), zap.Int("rows", len(rows)))
	log.Info("pipeline: starting run")

	var stats model.RunStatistics
	for i, g := range groups {
		n := &notifier{
			cb:       cb,
			index:    i + 1,
			total:    total,
			hospital: g.Key.Name,
			log:      log.With(zap.Int("index", i+1), zap.String("hospital", g.Key.Name)),
		}

		status := model.ProgressCompleted
		message := fmt.Sprintf("Completed validation for %s", g.Key.Name)

		results, err := r.validateGroup(ctx, g, func(msg string) {
			n.progress(ctx, model.ProgressInProgress, nil, stats, msg)
		})
		if err != nil {
			n.log.Error("pipeline: validation error", zap.Error(err))
			message = "Validation error: " + err.Error()
			status = model.ProgressError
			results = reviewAll(g.Doctors, message, 0)
		}

		// A failed append may have left part of the group on disk, so the
		// group is never written twice.
		if err := r.sink.Append(results); err != nil {
			return stats, eris.Wrapf(err, "pipeline: write results for %s", g.Key.Name)
		}

		stats.Record(results)
		n.persist(ctx, results)
		n.progress(ctx, status, results, stats, message)
		n.log.Info("pipeline: hospital complete",
			zap.Int("doctors", len(results)),
			zap.String("status", string(status)),
		)
	}

	log.Info("pipeline: run complete",
		zap.Int("total_processed", stats.TotalProcessed),
		zap.Int("verified", stats.Verified),
		zap.Int("updated", stats.Updated),
		zap.Int("needs_review", stats.NeedsReview),
	)
	return stats, nil
}

// validateGroup resolves one hospital and reconciles its doctors. A panic
// during comparison is returned as an error.
func (r *Runner) validateGroup(ctx context.Context, g model.HospitalGroup, status func(string)) (results []model.ReconciliationResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = eris.Errorf("%v", p)
		}
	}()

	status(fmt.Sprintf("Finding address for %s...", g.Key.Name))
	outcome := r.scrape(ctx, g.Key)

	if !outcome.Verified {
		source := outcome.Source
		if source == "" {
			source = defaultSource
		}
		reason := outcome.Error
		if reason == "" {
			reason = defaultVerifyError
		}
		zap.L().Warn("pipeline: hospital not verified",
			zap.String("hospital", g.Key.Name),
			zap.String("source", source),
			zap.String("error", reason),
		)
		return reviewAll(g.Doctors,
			fmt.Sprintf("Hospital address not found via %s - %s", source, reason),
			outcome.AddressConfidenceScore), nil
	}

	status(fmt.Sprintf("Verifying %d doctors against %d found records...", len(g.Doctors), len(outcome.Doctors)))

	results = make([]model.ReconciliationResult, 0, len(g.Doctors))
	for _, d := range g.Doctors {
		res := reconcile.CompareWithConfidence(d, outcome.Doctors, outcome.AddressConfidenceScore)
		res.Latitude, res.Longitude = outcome.Latitude, outcome.Longitude
		results = append(results, res)
	}
	return results, nil
}

// scrape calls the collaborator and turns an error or panic into an
// unverified outcome carrying the message.
func (r *Runner) scrape(ctx context.Context, key model.HospitalKey) (outcome *model.ScrapeOutcome) {
	defer func() {
		if p := recover(); p != nil {
			zap.L().Error("pipeline: collaborator panic", zap.String("hospital", key.Name), zap.Any("panic", p))
			outcome = &model.ScrapeOutcome{Error: fmt.Sprint(p)}
		}
	}()

	out, err := r.collab.VerifyAndScrape(ctx, key.Name, key.Address)
	if err != nil {
		zap.L().Error("pipeline: collaborator failed", zap.String("hospital", key.Name), zap.Error(err))
		return &model.ScrapeOutcome{Error: err.Error()}
	}
	if out == nil {
		return &model.ScrapeOutcome{}
	}
	return out
}

func reviewAll(doctors []model.DoctorRecord, reason string, confidence float64) []model.ReconciliationResult {
	results := make([]model.ReconciliationResult, 0, len(doctors))
	for _, d := range doctors {
		results = append(results, model.ReconciliationResult{
			DoctorRecord:    d,
			Status:          model.StatusNeedsReview,
			Reason:          reason,
			ConfidenceScore: confidence,
		})
	}
	return results
}

// notifier delivers callbacks for one hospital group.
type notifier struct {
	cb       Callbacks
	index    int
	total    int
	hospital string
	log      *zap.Logger
}

func (n *notifier) progress(ctx context.Context, status model.ProgressStatus, results []model.ReconciliationResult, stats model.RunStatistics, message string) {
	if n.cb.Progress == nil {
		return
	}
	n.invoke("progress", func() error {
		return n.cb.Progress(ctx, model.Progress{
			HospitalIndex:  n.index,
			TotalHospitals: n.total,
			HospitalName:   n.hospital,
			Status:         status,
			Results:        results,
			Stats:          stats,
			Message:        message,
		})
	})
}

func (n *notifier) persist(ctx context.Context, results []model.ReconciliationResult) {
	if n.cb.Persist == nil {
		return
	}
	n.invoke("persist", func() error {
		return n.cb.Persist(ctx, results)
	})
}

func (n *notifier) invoke(name string, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			n.log.Error("pipeline: callback panic", zap.String("callback", name), zap.Any("panic", p))
		}
	}()
	if err := fn(); err != nil {
		n.log.Error("pipeline: callback failed", zap.String("callback", name), zap.Error(err))
	}
}
