package pipeline

import (
	"sync"

	"github.com/otherjamesbrown/minute-cli/pkg/meeting"
)

// Reporter fans processing progress out to a single registered callback and
// keeps the latest snapshot for polling. Stage values never move backwards
// within one run; a late update for an earlier stage is dropped.
type Reporter struct {
	mu       sync.Mutex
	current  meeting.ProcessingProgress
	started  bool
	callback func(meeting.ProcessingProgress)
}

func NewReporter(callback func(meeting.ProcessingProgress)) *Reporter {
	return &Reporter{callback: callback}
}

// SetCallback registers the progress callback. Pass nil to silence it.
func (r *Reporter) SetCallback(cb func(meeting.ProcessingProgress)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callback = cb
}

// Reset clears the reporter for a new run.
func (r *Reporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = meeting.ProcessingProgress{}
	r.started = false
}

// Set records a progress update and forwards it to the callback. Updates for
// a stage earlier than the current one are ignored.
func (r *Reporter) Set(p meeting.ProcessingProgress) {
	r.mu.Lock()
	if r.started && p.Stage.Before(r.current.Stage) {
		r.mu.Unlock()
		return
	}
	r.current = p
	r.started = true
	cb := r.callback
	r.mu.Unlock()

	if cb != nil {
		cb(p)
	}
}

// Snapshot returns the most recent progress update.
func (r *Reporter) Snapshot() meeting.ProcessingProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}
