package testsupport

import (
	"sync"

	"github.com/elodin/bridge/pkg/autosave"
)

// Form is an in-memory autosave.FormView and autosave.EventSource. Field
// order is insertion order.
type Form struct {
	Endpoint string
	// Err, when set, is returned by Snapshot.
	Err error

	mu          sync.Mutex
	fields      autosave.Snapshot
	subscribers map[int]func(autosave.Event)
	nextID      int
}

var (
	_ autosave.FormView    = (*Form)(nil)
	_ autosave.EventSource = (*Form)(nil)
)

// NewForm builds a form posting to endpoint with the given name/value pairs.
func NewForm(endpoint string, pairs ...string) *Form {
	f := &Form{Endpoint: endpoint}
	for i := 0; i+1 < len(pairs); i += 2 {
		f.fields = append(f.fields, autosave.Field{Name: pairs[i], Value: pairs[i+1]})
	}
	return f
}

// Snapshot implements autosave.FormView.
func (f *Form) Snapshot() (autosave.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return append(autosave.Snapshot(nil), f.fields...), nil
}

// Action implements autosave.FormView.
func (f *Form) Action() string { return f.Endpoint }

// Subscribe implements autosave.EventSource.
func (f *Form) Subscribe(fn func(autosave.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribers == nil {
		f.subscribers = make(map[int]func(autosave.Event))
	}
	id := f.nextID
	f.nextID++
	f.subscribers[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subscribers, id)
	}
}

// Subscribers reports how many listeners are attached.
func (f *Form) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

// Set updates a text field and emits a change event.
func (f *Form) Set(name, value string) {
	f.Put(name, value)
	f.Emit(autosave.Event{Kind: autosave.EventChange, Field: name, FieldType: "text"})
}

// Type updates a text field and emits an input event.
func (f *Form) Type(name, value string) {
	f.Put(name, value)
	f.Emit(autosave.Event{Kind: autosave.EventInput, Field: name, FieldType: "text"})
}

// Emit delivers ev to every subscriber.
func (f *Form) Emit(ev autosave.Event) {
	f.mu.Lock()
	listeners := make([]func(autosave.Event), 0, len(f.subscribers))
	for _, fn := range f.subscribers {
		listeners = append(listeners, fn)
	}
	f.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// Put changes a field without emitting an event, like a script rewriting
// the DOM.
func (f *Form) Put(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.fields {
		if f.fields[i].Name == name {
			f.fields[i].Value = value
			return
		}
	}
	f.fields = append(f.fields, autosave.Field{Name: name, Value: value})
}
