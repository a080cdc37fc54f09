package testsupport

import (
	"sync"

	"github.com/elodin/bridge/pkg/autosave"
)

// Update is one call recorded by StatusRecorder.
type Update struct {
	State   autosave.State
	Message string
	Diag    *autosave.Diagnostics
}

// StatusRecorder is an autosave.StatusView that keeps every update.
type StatusRecorder struct {
	mu      sync.Mutex
	updates []Update
}

var _ autosave.StatusView = (*StatusRecorder)(nil)

// Update implements autosave.StatusView.
func (r *StatusRecorder) Update(state autosave.State, message string, diag *autosave.Diagnostics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, Update{State: state, Message: message, Diag: diag})
}

// Updates returns a copy of the recorded updates.
func (r *StatusRecorder) Updates() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

// States returns the recorded state sequence.
func (r *StatusRecorder) States() []autosave.State {
	updates := r.Updates()
	out := make([]autosave.State, 0, len(updates))
	for _, u := range updates {
		out = append(out, u.State)
	}
	return out
}

// Last returns the most recent update.
func (r *StatusRecorder) Last() (Update, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return Update{}, false
	}
	return r.updates[len(r.updates)-1], true
}
