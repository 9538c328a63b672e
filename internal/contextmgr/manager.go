// Package contextmgr implements shared-state slots with typed lifecycle,
// held outside any single token. Visibility and lifecycle are advisory
// for the current kernel — no eviction is performed for cached slots, and
// transient slots are only cleared explicitly by the engine on
// completion.
package contextmgr

import (
	"sync"

	"github.com/flowkernel/kernel/internal/kernelerr"
	"github.com/flowkernel/kernel/internal/workflow"
)

// Manager maintains an in-memory mapping of context id to value, seeded
// from each declared context's initial value. Access is serialized per
// slot so concurrent readers/writers across tokens observe a consistent
// total order.
type Manager struct {
	mu       sync.RWMutex
	slots    map[string]*slot
}

type slot struct {
	mu        sync.Mutex
	def       workflow.Context
	value     any
}

// New constructs a Manager with no registered slots.
func New() *Manager {
	return &Manager{slots: make(map[string]*slot)}
}

// Register declares a context slot, deep-copying its initial value (if
// any) as the seed. Re-registering an id replaces its definition and
// reseeds its value.
func (m *Manager) Register(def workflow.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[def.ID] = &slot{def: def, value: deepCopy(def.InitialValue)}
}

// Get returns the current value of id. Fails with kernelerr.NotFound if
// id was never registered.
func (m *Manager) Get(id string) (any, error) {
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, nil
}

// Set replaces the value at id wholesale. Fails with kernelerr.NotFound
// if id was never registered.
func (m *Manager) Set(id string, value any) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = value
	return nil
}

// Update performs a top-level merge into the slot's value, which must
// currently hold (or be nil and become) a map[string]any. Fails with
// kernelerr.NotFound if id was never registered.
func (m *Manager) Update(id string, patch map[string]any) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, _ := s.value.(map[string]any)
	merged := make(map[string]any, len(current)+len(patch))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	s.value = merged
	return nil
}

// Delete removes a context slot entirely. Unlike Get/Set/Update,
// deleting an unregistered id is a no-op (nothing to forget).
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, id)
}

// ClearTransient drops the value (but keeps the registration) of every
// slot declared with lifecycle "transient". Transient values are cleared
// on engine completion.
func (m *Manager) ClearTransient() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.slots {
		if s.def.Lifecycle == workflow.LifecycleTransient {
			s.mu.Lock()
			s.value = nil
			s.mu.Unlock()
		}
	}
}

// Snapshot returns a copy of every registered slot's current value,
// keyed by context id, for checkpointing. Persistent slots are always
// included; transient/cached slots are included as-is since the kernel
// performs no eviction.
func (m *Manager) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.slots))
	for id, s := range m.slots {
		s.mu.Lock()
		out[id] = s.value
		s.mu.Unlock()
	}
	return out
}

// Restore seeds slot values from a checkpoint snapshot. Ids not already
// registered are skipped; call Register for each declared context first.
func (m *Manager) Restore(values map[string]any) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, v := range values {
		if s, ok := m.slots[id]; ok {
			s.mu.Lock()
			s.value = v
			s.mu.Unlock()
		}
	}
}

func (m *Manager) lookup(id string) (*slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, kernelerr.New(kernelerr.NotFound, "context %q is not registered", id)
	}
	return s, nil
}

// deepCopy performs a best-effort deep copy of JSON-shaped values
// (maps, slices, scalars) so seeding a slot's initial value never
// aliases the workflow definition's own data.
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = deepCopy(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = deepCopy(vv)
		}
		return out
	default:
		return val
	}
}
