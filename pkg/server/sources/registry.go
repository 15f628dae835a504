package sources

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry = make(map[string]AdapterFactory)
	mu       sync.RWMutex
)

// Register adds an adapter factory to the registry under "type.name".
func Register(key string, factory AdapterFactory) {
	mu.Lock()
	defer mu.Unlock()
	registry[key] = factory
}

// Create creates a new adapter instance by type and name
func Create(sourceType, name string, config map[string]interface{}) (Adapter, error) {
	mu.RLock()
	factory, ok := registry[fmt.Sprintf("%s.%s", sourceType, name)]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownSource, sourceType, name)
	}

	return factory(config)
}

// List returns all registered adapter keys, sorted.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
