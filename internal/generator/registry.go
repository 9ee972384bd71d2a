package generator

import (
	"context"
	"sync"
)

// Registry hands out one controller per cruise id, all sharing the same deps.
type Registry struct {
	deps Deps

	mu          sync.Mutex
	controllers map[string]*Controller
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, controllers: make(map[string]*Controller)}
}

// Get returns the controller for cruiseID, creating it on first use.
func (r *Registry) Get(cruiseID string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.controllers[cruiseID]
	if !ok {
		c = NewController(cruiseID, r.deps)
		r.controllers[cruiseID] = c
	}
	return c
}

// Lookup returns the controller for cruiseID without creating one.
func (r *Registry) Lookup(cruiseID string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.controllers[cruiseID]
	return c, ok
}

// Jobs snapshots every known job.
func (r *Registry) Jobs() []Job {
	r.mu.Lock()
	ctrls := make([]*Controller, 0, len(r.controllers))
	for _, c := range r.controllers {
		ctrls = append(ctrls, c)
	}
	r.mu.Unlock()

	jobs := make([]Job, 0, len(ctrls))
	for _, c := range ctrls {
		jobs = append(jobs, c.Job())
	}
	return jobs
}

// Shutdown cancels every running job and waits for them to finish.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	ctrls := make([]*Controller, 0, len(r.controllers))
	for _, c := range r.controllers {
		ctrls = append(ctrls, c)
	}
	r.mu.Unlock()

	for _, c := range ctrls {
		c.Cancel()
	}
	for _, c := range ctrls {
		if _, err := c.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
