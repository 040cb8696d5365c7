package pipeline

import (
	"context"
	"log/slog"

	"github.com/dgallion1/quizgen/internal/config"
)

// Worker processes a single quiz job.
type Worker struct {
	cfg     config.Settings
	backend Backend
	log     *slog.Logger
}

func NewWorker(cfg config.Settings, backend Backend, log *slog.Logger) *Worker {
	return &Worker{cfg: cfg, backend: backend, log: log}
}

// Process runs the full pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID)

	job.SetStatus(StatusRunning, PhaseChunking)
	runner := NewRunner(w.cfg, w.backend, log)
	runner.OnPhase = job.SetPhase
	runner.OnProgress = job.UpdateProgress

	result, err := runner.Run(ctx, job.Pages())
	if err != nil {
		log.Error("quiz pipeline failed", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, job.Snapshot().Phase)
		return
	}

	job.SetResult(result)
	job.SetStatus(StatusCompleted, PhaseDone)
	log.Info("quiz pipeline complete",
		"questions", len(result.Questions),
		"sections", len(result.Summary.Sections))
}
