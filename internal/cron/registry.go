package cron

import (
	"context"
	"fmt"
)

// Job is one unit of scheduled maintenance work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the jobs a worker runs each cycle. Job names must be
// unique; they become log fields and metric label values.
type Registry struct {
	order []Job
	names map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Add appends a job in execution order.
func (r *Registry) Add(job Job) error {
	if job == nil {
		return fmt.Errorf("nil job")
	}
	name := job.Name()
	if name == "" {
		return fmt.Errorf("job has no name")
	}
	if _, taken := r.names[name]; taken {
		return fmt.Errorf("duplicate job name %q", name)
	}
	r.names[name] = struct{}{}
	r.order = append(r.order, job)
	return nil
}

// Jobs returns the jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.order))
	copy(jobs, r.order)
	return jobs
}
