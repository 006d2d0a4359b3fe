package role

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps role names to implementations. Registration happens at
// startup; lookups are concurrent-safe for batched host execution.
type Registry struct {
	mu    sync.RWMutex
	roles map[string]Role
}

// NewRegistry creates an empty role registry.
func NewRegistry() *Registry {
	return &Registry{roles: make(map[string]Role)}
}

// Register adds a role implementation under its name.
func (r *Registry) Register(role Role) error {
	if role == nil {
		return fmt.Errorf("role is nil")
	}
	name := role.Name()
	if name == "" {
		return fmt.Errorf("role name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.roles[name]; exists {
		return fmt.Errorf("role %q already registered", name)
	}

	r.roles[name] = role
	return nil
}

// Get retrieves a role by name.
func (r *Registry) Get(name string) (Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.roles[name]
	if !ok {
		return nil, fmt.Errorf("no role registered with name %q", name)
	}
	return role, nil
}

// Names returns the registered role names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.roles))
	for name := range r.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
