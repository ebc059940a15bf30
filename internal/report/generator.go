package report

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/storerecon/reconciler/internal/domain"
	"github.com/storerecon/reconciler/internal/reconciliation"
	"github.com/storerecon/reconciler/internal/storage"
)

// Reconciler refreshes the stored result sets of a window.
type Reconciler interface {
	Run(ctx context.Context, scope domain.Scope) (*reconciliation.RunResult, error)
}

// Cursor is an open read of stored result sets.
type Cursor interface {
	Source
	Close() error
}

// OpenFunc opens a cursor over the stored results of a window.
type OpenFunc func(ctx context.Context, scope domain.Scope) (Cursor, error)

// Generator builds the workbook for a report job.
type Generator struct {
	reconciler Reconciler
	open       OpenFunc
	emitter    *Emitter
	store      storage.Store
	log        logrus.FieldLogger
}

func NewGenerator(reconciler Reconciler, open OpenFunc, emitter *Emitter, store storage.Store, log logrus.FieldLogger) *Generator {
	return &Generator{
		reconciler: reconciler,
		open:       open,
		emitter:    emitter,
		store:      store,
		log:        log.WithField("component", "report"),
	}
}

// Filename is the stored name of a job's workbook.
func Filename(job *domain.Job) string {
	return fmt.Sprintf("reconciliation_%s_%s_%s.xlsx", job.StartDate, job.EndDate, job.ID)
}

// Run reconciles the job's window, reads the results back and stores the
// rendered workbook. It returns the stored file name.
func (g *Generator) Run(ctx context.Context, job *domain.Job, progress func(percent int, message string)) (string, error) {
	if progress == nil {
		progress = func(int, string) {}
	}
	scope, err := job.Scope()
	if err != nil {
		return "", err
	}
	log := g.log.WithFields(logrus.Fields{"job_id": job.ID, "window": scope.String()})

	progress(10, "reconciling")
	run, err := g.reconciler.Run(ctx, scope)
	if err != nil {
		return "", fmt.Errorf("reconcile: %w", err)
	}
	log.WithField("counts", run.Counts).Info("window reconciled")

	progress(40, "rendering report")
	cur, err := g.open(ctx, scope)
	if err != nil {
		return "", fmt.Errorf("open results: %w", err)
	}
	defer cur.Close()

	name := Filename(job)
	var summary *Summary
	err = g.store.Save(ctx, name, func(w io.Writer) error {
		s, err := g.emitter.Render(ctx, cur, scope, w, func(done, total int) {
			progress(40+50*done/total, fmt.Sprintf("rendered %d of %d sheets", done, total))
		})
		summary = s
		return err
	})
	if err != nil {
		return "", fmt.Errorf("store %s: %w", name, err)
	}

	records := 0
	for _, s := range summary.Sets {
		records += s.Records
	}
	log.WithFields(logrus.Fields{"file": name, "records": records}).Info("report stored")
	progress(95, "report stored")
	return name, nil
}
