package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const scheduledJobTimeout = 5 * time.Minute

// Scheduler runs the periodic follow-up, monitoring and upload cleanup jobs.
type Scheduler struct {
	app  *App
	cron *cron.Cron
}

func newScheduler(app *App) (*Scheduler, error) {
	s := &Scheduler{
		app:  app,
		cron: cron.New(cron.WithLocation(app.timeLocation())),
	}

	jobs := []struct {
		name     string
		schedule string
		run      func(ctx context.Context) error
	}{
		{"followups", app.cfg.FollowupSchedule, func(ctx context.Context) error {
			return app.runFollowupsJob(ctx, app.cfg.FollowupDaysWithoutUpdate)
		}},
		{"monitoring", app.cfg.MonitoringSchedule, app.runMonitoringJob},
		{"upload_cleanup", app.cfg.UploadCleanupSchedule, func(ctx context.Context) error {
			_, err := app.cleanupOrphanedUploads(ctx)
			return err
		}},
	}
	for _, job := range jobs {
		if job.schedule == "" || job.schedule == "off" {
			app.log.Info("scheduled job disabled", "job", job.name)
			continue
		}
		if _, err := s.cron.AddFunc(job.schedule, s.wrap(job.name, job.run)); err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", job.name, job.schedule, err)
		}
	}
	return s, nil
}

func (s *Scheduler) wrap(name string, run func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), scheduledJobTimeout)
		defer cancel()
		if err := run(ctx); err != nil {
			s.app.log.Error("scheduled job failed", "job", name, "err", err)
		}
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.app.log.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.app.log.Info("scheduler stopped")
}

func (a *App) runFollowupsJob(ctx context.Context, days int) error {
	result, err := a.backend.RunFollowups(ctx, days)
	a.metrics.observeJob("followups", err)
	if err != nil {
		return fmt.Errorf("run followups: %w", err)
	}
	a.log.Info("followups run", "days_without_update", days, "message", result.Message, "details", result.Details)
	return nil
}

func (a *App) runMonitoringJob(ctx context.Context) error {
	result, err := a.backend.RunMonitoring(ctx)
	a.metrics.observeJob("monitoring", err)
	if err != nil {
		return fmt.Errorf("run monitoring: %w", err)
	}
	a.log.Info("monitoring run", "message", result.Message, "details", result.Details)
	return nil
}
