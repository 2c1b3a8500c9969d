// Package jobs schedules the time-driven sweeps: route offer expiry and
// lateness, delivery request expiration, stock lot expiration and the
// periodic batching cycle.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled task. Spec uses cron syntax or the @every form.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler runs the registered jobs on their cron schedules.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler registers the jobs and returns a scheduler ready to start.
// Each run gets its own timeout so a stuck sweep cannot pile up.
func NewScheduler(jobs []Job) (*Scheduler, error) {
	c := cron.New()
	for _, j := range jobs {
		job := j
		_, err := c.AddFunc(job.Spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			start := time.Now()
			if err := job.Run(ctx); err != nil {
				log.Printf("job %s failed after %s: %v", job.Name, time.Since(start).Round(time.Millisecond), err)
				return
			}
			log.Printf("job %s finished in %s", job.Name, time.Since(start).Round(time.Millisecond))
		})
		if err != nil {
			return nil, err
		}
	}
	return &Scheduler{cron: c}, nil
}

// Start begins scheduling in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
