// Package program defines the ABI between the monitor and the preprocessed
// business program artifacts it executes, and resolves program names to
// callable entries.
//
// Every artifact exposes one entry named after the program. While executing,
// the artifact calls back into the monitor through the API it was invoked
// with: Exec for each embedded-command token, Resolve for dynamic CALL.
package program

import (
	"errors"
	"fmt"
	"plugin"
	"sync"

	"github.com/xandr001/qwics/pkg/field"
)

// API is the callback surface the monitor hands to a running artifact.
type API interface {
	// Exec delivers one embedded-command token, optionally accompanied by
	// a bound field.
	Exec(token string, f *field.Field)

	// Resolve resolves a program name for dynamic CALL. Resolution
	// failures abend the task.
	Resolve(name string) Entry

	// OnCondition registers a handler closure for the given response
	// code. An abend with that code transfers control to the handler
	// instead of terminating the task.
	OnCondition(resp int, handler func())
}

// Entry is the callable entry an artifact exports: the communication area
// first, then up to ten positional parameters.
type Entry func(api API, commArea []byte, params ...[]byte)

// MaxParams is the positional-parameter bound of the artifact ABI.
const MaxParams = 10

var (
	// ErrNotFound means no artifact file exists for the program name.
	ErrNotFound = errors.New("program: artifact not found")

	// ErrBadSymbol means the artifact exists but exports no entry of the
	// expected name and signature.
	ErrBadSymbol = errors.New("program: entry symbol missing")
)

// Loader resolves program names to entries.
type Loader interface {
	Resolve(name string) (Entry, error)
}

// PluginLoader loads artifacts as Go plugins from a directory. The artifact
// for program NAME is <dir>/NAME.so and exports a symbol NAME of type Entry.
type PluginLoader struct {
	dir string
}

// NewPluginLoader creates a loader over the artifact directory.
func NewPluginLoader(dir string) *PluginLoader {
	return &PluginLoader{dir: dir}
}

// Resolve opens the artifact and looks up its entry.
func (l *PluginLoader) Resolve(name string) (Entry, error) {
	path := fmt.Sprintf("%s/%s.so", l.dir, name)
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}
	sym, err := p.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s in %s: %v", ErrBadSymbol, name, path, err)
	}
	entry, ok := sym.(func(API, []byte, ...[]byte))
	if !ok {
		return nil, fmt.Errorf("%w: %s has type %T", ErrBadSymbol, name, sym)
	}
	return Entry(entry), nil
}

// Registry is an in-process loader for embedded deployments and tests:
// program names map directly to Go functions.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds or replaces a program.
func (r *Registry) Register(name string, entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry
}

// Resolve looks a program up.
func (r *Registry) Resolve(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[name]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}
