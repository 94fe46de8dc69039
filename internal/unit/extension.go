package unit

import "sync"

// Key names an entry in a unit's extension data. Only the keys declared in
// this package are used by the tracing core.
type Key string

const (
	// KeySpan holds the unit's in-flight span handle.
	KeySpan Key = "jobtrace.span"
	// KeyLoggingInternal marks units that run the engine's own logging and
	// must not be traced.
	KeyLoggingInternal Key = "jobtrace.logging.internal"
)

// ExtensionData is per-unit side-channel storage. It is safe for concurrent
// use; a Store on one goroutine happens before any Load that observes it.
type ExtensionData struct {
	mu sync.RWMutex
	m  map[Key]any
}

// NewExtensionData returns an empty store.
func NewExtensionData() *ExtensionData {
	return &ExtensionData{m: make(map[Key]any)}
}

// Load returns the value stored under key.
func (d *ExtensionData) Load(key Key) (any, bool) {
	if d == nil {
		return nil, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.m[key]
	return v, ok
}

// Store sets the value for key.
func (d *ExtensionData) Store(key Key, v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.m == nil {
		d.m = make(map[Key]any)
	}
	d.m[key] = v
}

// LoadOrStore returns the existing value for key if present. Otherwise it
// stores v and returns it. loaded is true if the value was already present.
func (d *ExtensionData) LoadOrStore(key Key, v any) (actual any, loaded bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.m == nil {
		d.m = make(map[Key]any)
	}
	if existing, ok := d.m[key]; ok {
		return existing, true
	}
	d.m[key] = v
	return v, false
}

// LoadAndDelete removes key and returns its previous value.
func (d *ExtensionData) LoadAndDelete(key Key) (any, bool) {
	if d == nil {
		return nil, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.m[key]
	if ok {
		delete(d.m, key)
	}
	return v, ok
}

// Delete removes key.
func (d *ExtensionData) Delete(key Key) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.m, key)
}

// Has reports whether key is present.
func (d *ExtensionData) Has(key Key) bool {
	_, ok := d.Load(key)
	return ok
}

// Len returns the number of entries.
func (d *ExtensionData) Len() int {
	if d == nil {
		return 0
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.m)
}
