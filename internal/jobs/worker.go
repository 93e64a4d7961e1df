package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/services"
)

const (
	analysisPollInterval = 1 * time.Second
	importPollInterval   = 30 * time.Second
	maintenanceInterval  = 10 * time.Minute
	heartbeatInterval    = 30 * time.Second
)

// Worker drives the asynchronous pipelines: vision analysis jobs,
// reference corpus imports, and periodic maintenance.
type Worker struct {
	log         *logger.Logger
	vision      services.VisionService
	importer    services.ImporterService
	conversions services.ConversionService
	auth        services.AuthService
}

func NewWorker(
	baseLog *logger.Logger,
	vision services.VisionService,
	importer services.ImporterService,
	conversions services.ConversionService,
	auth services.AuthService,
) *Worker {
	return &Worker{
		log:         baseLog.With("component", "JobWorker"),
		vision:      vision,
		importer:    importer,
		conversions: conversions,
		auth:        auth,
	}
}

func (w *Worker) Start(ctx context.Context) {
	go w.analysisLoop(ctx)
	go w.importLoop(ctx)
	go w.maintenanceLoop(ctx)
}

func (w *Worker) analysisLoop(ctx context.Context) {
	ticker := time.NewTicker(analysisPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := w.vision.ClaimNext(ctx)
			if err != nil {
				w.log.Warn("claim analysis job failed", "error", err)
				continue
			}
			if job == nil {
				continue
			}
			w.runWithHeartbeat(ctx, job.ID, w.vision.Heartbeat, func(runCtx context.Context) error {
				return w.vision.ExecutePass(runCtx, job)
			})
		}
	}
}

func (w *Worker) importLoop(ctx context.Context) {
	ticker := time.NewTicker(importPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := w.importer.ClaimNext(ctx)
			if err != nil {
				w.log.Warn("claim import job failed", "error", err)
				continue
			}
			if job == nil {
				continue
			}
			w.runWithHeartbeat(ctx, job.ID, w.importer.Heartbeat, func(runCtx context.Context) error {
				return w.importer.Run(runCtx, job)
			})
		}
	}
}

// runWithHeartbeat executes one job pass while a side goroutine keeps
// the job's heartbeat fresh so a crashed worker's jobs get reclaimed.
// Panics are contained to the pass.
func (w *Worker) runWithHeartbeat(ctx context.Context, jobID uuid.UUID, heartbeat func(context.Context, uuid.UUID) error, run func(context.Context) error) {
	hbCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := heartbeat(hbCtx, jobID); err != nil {
					w.log.Warn("job heartbeat failed", "job_id", jobID, "error", err)
				}
			}
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("job pass panicked", "job_id", jobID, "panic", fmt.Sprintf("%v", r))
		}
	}()
	if err := run(ctx); err != nil {
		w.log.Warn("job pass failed", "job_id", jobID, "error", err)
	}
}

func (w *Worker) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if reaped, err := w.conversions.ReapExpired(ctx); err != nil {
				w.log.Warn("conversion reap failed", "error", err)
			} else if reaped > 0 {
				w.log.Info("expired conversions reaped", "count", reaped)
			}
			if err := w.auth.CleanupExpiredTokens(ctx); err != nil {
				w.log.Warn("token cleanup failed", "error", err)
			}
		}
	}
}
