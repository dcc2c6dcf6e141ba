package selfheal

import "sync"

// FakeRegistrar is an in-memory TaskRegistrar for tests.
type FakeRegistrar struct {
	mu sync.Mutex

	// FailCreate makes every Create call return an error.
	FailCreate error

	tasks map[string]TaskSpec
}

func NewFakeRegistrar() *FakeRegistrar {
	return &FakeRegistrar{tasks: make(map[string]TaskSpec)}
}

func (r *FakeRegistrar) Exists(name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[name]
	return ok, nil
}

func (r *FakeRegistrar) Create(spec TaskSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreate != nil {
		return r.FailCreate
	}
	r.tasks[spec.Name] = spec
	return nil
}

// Remove deletes a registered task, simulating external tampering.
func (r *FakeRegistrar) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, name)
}

// Task returns the registered spec, if any.
func (r *FakeRegistrar) Task(name string) (TaskSpec, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	spec, ok := r.tasks[name]
	return spec, ok
}

// Count reports how many tasks are registered.
func (r *FakeRegistrar) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
