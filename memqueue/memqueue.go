// Package memqueue is the in-memory fast path for jobs of process
// instances pinned on this node. While an instance is registered, new
// jobs for it can be parked in memory instead of being written to the
// store; before the instance is unpinned its queue is drained and the
// caller persists what it finds.
//
// A Registry belongs to one node and is injected into the components that
// use it. There is no package-level state.
package memqueue

import (
	"sync"

	"github.com/xraph/asyncexec/job"
)

// instance is the queue of one pinned process instance. mu is taken for
// reading by appenders and for writing by drain and unregister.
type instance struct {
	mu   sync.RWMutex
	qmu  sync.Mutex
	jobs []*job.Job
}

func (in *instance) push(j *job.Job) {
	in.qmu.Lock()
	in.jobs = append(in.jobs, j)
	in.qmu.Unlock()
}

func (in *instance) len() int {
	in.qmu.Lock()
	defer in.qmu.Unlock()
	return len(in.jobs)
}

// Registry maps process-instance IDs to their in-memory job queues.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*instance
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{instances: make(map[string]*instance)}
}

// Register pins a process instance. Registering an already pinned
// instance is a no-op.
func (r *Registry) Register(processInstanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[processInstanceID]; !ok {
		r.instances[processInstanceID] = &instance{}
	}
}

// Registered reports whether the process instance is pinned.
func (r *Registry) Registered(processInstanceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.instances[processInstanceID]
	return ok
}

// TryAppend parks j on its process instance's queue. It returns false when
// the instance is not pinned or was unregistered concurrently, in which
// case the caller must persist the job itself.
func (r *Registry) TryAppend(j *job.Job) bool {
	r.mu.RLock()
	in, ok := r.instances[j.ProcessInstanceID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	in.mu.RLock()
	defer in.mu.RUnlock()

	// Unregister may have removed the entry between the lookup and the
	// lock; appending then would strand the job.
	r.mu.RLock()
	current := r.instances[j.ProcessInstanceID]
	r.mu.RUnlock()
	if current != in {
		return false
	}

	in.push(j)
	return true
}

// Drain removes and returns every job parked for the process instance, in
// append order. It returns nil when nothing is parked or the instance is
// not pinned.
func (r *Registry) Drain(processInstanceID string) []*job.Job {
	r.mu.RLock()
	in, ok := r.instances[processInstanceID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	in.qmu.Lock()
	defer in.qmu.Unlock()
	jobs := in.jobs
	in.jobs = nil
	return jobs
}

// Unregister unpins the process instance. It refuses and returns false
// while jobs are still parked, so the caller drains and persists them
// first; jobs appended between the last drain and this call are never
// dropped. Unregistering an instance that is not pinned returns true.
func (r *Registry) Unregister(processInstanceID string) bool {
	r.mu.RLock()
	in, ok := r.instances[processInstanceID]
	r.mu.RUnlock()
	if !ok {
		return true
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.len() > 0 {
		return false
	}

	r.mu.Lock()
	if r.instances[processInstanceID] == in {
		delete(r.instances, processInstanceID)
	}
	r.mu.Unlock()
	return true
}

// Len returns the number of jobs parked for the process instance.
func (r *Registry) Len(processInstanceID string) int {
	r.mu.RLock()
	in, ok := r.instances[processInstanceID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	return in.len()
}

// Instances returns the IDs of all pinned process instances.
func (r *Registry) Instances() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.instances))
	for pid := range r.instances {
		ids = append(ids, pid)
	}
	return ids
}
