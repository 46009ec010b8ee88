package program

import "fmt"

// CallStackCapacity bounds the cached artifact handles per task.
const CallStackCapacity = 1024

// stackEntry is one cached resolution.
type stackEntry struct {
	name  string
	entry Entry
}

// CallStack caches resolved entries for one task. Dynamic CALL resolves
// through it so repeated calls reuse the loaded handle; entries are released
// in reverse order at task end.
type CallStack struct {
	loader  Loader
	entries []stackEntry
}

// NewCallStack creates a call stack over the given loader.
func NewCallStack(loader Loader) *CallStack {
	return &CallStack{loader: loader}
}

// Resolve returns the entry for name, caching the handle on first use.
func (cs *CallStack) Resolve(name string) (Entry, error) {
	for _, e := range cs.entries {
		if e.name == name {
			return e.entry, nil
		}
	}
	entry, err := cs.loader.Resolve(name)
	if err != nil {
		return nil, fmt.Errorf("dynamic call %s: %w", name, err)
	}
	if len(cs.entries) < CallStackCapacity {
		cs.entries = append(cs.entries, stackEntry{name: name, entry: entry})
	}
	return entry, nil
}

// Depth reports the number of cached handles.
func (cs *CallStack) Depth() int {
	return len(cs.entries)
}

// Release drops every cached handle in reverse acquisition order.
func (cs *CallStack) Release() {
	for i := len(cs.entries) - 1; i >= 0; i-- {
		cs.entries[i] = stackEntry{}
	}
	cs.entries = cs.entries[:0]
}
