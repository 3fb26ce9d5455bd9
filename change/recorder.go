package change

import (
	"context"
	"sync"

	"github.com/signadot/tony-txn/debug"
	"github.com/signadot/tony-txn/model"
)

// Recorder listens to a model and records entries between BeginRecording
// and EndRecording.
type Recorder struct {
	mu  sync.Mutex
	cur *Description
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// BeginRecording starts a new description, discarding any recording in
// progress.
func (r *Recorder) BeginRecording() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cur = &Description{}
	if debug.Record() {
		debug.Logf("recorder: begin\n")
	}
}

func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur != nil
}

// EndRecording stops recording and returns what was recorded, or nil if
// the recorder was idle.
func (r *Recorder) EndRecording() *Description {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.cur
	r.cur = nil
	if debug.Record() && res != nil {
		debug.Logf("recorder: end with %d entries\n", len(res.entries))
	}
	return res
}

func (r *Recorder) Notify(_ context.Context, n *model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return
	}
	e := FromNotification(n)
	r.cur.add(e)
	if debug.Record() {
		debug.Logf("recorder: %s\n", e)
	}
}
