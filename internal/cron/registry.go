package cron

import (
	"context"
	"fmt"
	"time"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Periodic jobs run at most once per Every, however often the scheduler
// ticks. Retention purges use it to run hourly next to five-minute jobs.
type Periodic interface {
	Every() time.Duration
}

// every returns the job's own cadence, or zero for every tick.
func every(job Job) time.Duration {
	if p, ok := job.(Periodic); ok {
		return p.Every()
	}
	return 0
}

// Registry tracks registered cron jobs by unique name.
type Registry struct {
	jobs  []Job
	index map[string]Job
}

// NewRegistry builds a registry preloaded with the provided jobs. Nil jobs
// are skipped and a duplicate name panics.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{index: map[string]Job{}}
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			panic(err)
		}
	}
	return registry
}

// Register adds a job to the registry.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	if _, exists := r.index[job.Name()]; exists {
		return fmt.Errorf("cron job %q already registered", job.Name())
	}
	r.index[job.Name()] = job
	r.jobs = append(r.jobs, job)
	return nil
}

// Get returns the job registered under name.
func (r *Registry) Get(name string) (Job, bool) {
	job, ok := r.index[name]
	return job, ok
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}
