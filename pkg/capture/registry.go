package capture

import "sync"

// DefaultRegistrySize bounds how many jobs a Registry remembers.
const DefaultRegistrySize = 256

// Registry indexes jobs by id. When full, the oldest finished job is evicted.
type Registry struct {
	mu    sync.Mutex
	max   int
	order []string
	jobs  map[string]*Job
}

// NewRegistry creates a registry holding at most max jobs (DefaultRegistrySize if <= 0).
func NewRegistry(max int) *Registry {
	if max <= 0 {
		max = DefaultRegistrySize
	}
	return &Registry{max: max, jobs: make(map[string]*Job)}
}

// Add registers job.
func (r *Registry) Add(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := job.ID()
	if _, ok := r.jobs[id]; !ok {
		r.order = append(r.order, id)
	}
	r.jobs[id] = job

	for len(r.jobs) > r.max {
		if !r.evictOldestDone() {
			break
		}
	}
}

func (r *Registry) evictOldestDone() bool {
	for i, id := range r.order {
		if r.jobs[id].Snapshot().Done {
			delete(r.jobs, id)
			r.order = append(r.order[:i], r.order[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the job with the given id.
func (r *Registry) Get(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	return job, ok
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Snapshots returns the state of every registered job, oldest first.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.jobs[id].Snapshot())
	}
	return out
}

// Latest returns the most recently added job.
func (r *Registry) Latest() (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return nil, false
	}
	return r.jobs[r.order[len(r.order)-1]], true
}
