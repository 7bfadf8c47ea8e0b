package cron

import (
	"context"
	"fmt"
)

// Job is one background sweep. Run must be safe to repeat: a cycle can run
// unlocked on two instances, and a failed sweep is retried on the next tick.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry is the ordered list of sweeps run on every tick.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

// NewRegistry registers jobs in order. It panics on a duplicate name, since
// metrics and logs are keyed by it.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{names: map[string]struct{}{}}
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			panic(err)
		}
	}
	return registry
}

// Register appends job. A nil job is ignored.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	name := job.Name()
	if name == "" {
		return fmt.Errorf("cron: job %T has no name", job)
	}
	if _, dup := r.names[name]; dup {
		return fmt.Errorf("cron: job %q registered twice", name)
	}
	r.names[name] = struct{}{}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns the sweeps in run order. The slice is the caller's.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

// Names lists the registered sweep names in run order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.jobs))
	for i, job := range r.jobs {
		names[i] = job.Name()
	}
	return names
}
