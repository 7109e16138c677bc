// Package registry correlates task ids handed to the browser driver with the Go
// closures that must run once the driver has a context ready for them.
package registry

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/zbrowser/internal/driver"
	"github.com/JakeFAU/zbrowser/internal/metrics"
)

// nextID is shared by every Registry so that task ids, which double as driver
// context ids, stay unique across all scrapers in the process.
var nextID atomic.Int64

// Registry maps task ids to callbacks. It is safe for concurrent use; registrations
// for unrelated tasks never contend on a shared lock.
type Registry struct {
	entries sync.Map // int64 -> driver.Callback
	size    atomic.Int64
	logger  *zap.Logger
}

// New creates an empty Registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger}
}

// Register stores cb under a fresh id and returns it. Ids are positive and never
// reused while the process runs, whichever Registry hands them out.
func (r *Registry) Register(cb driver.Callback) int64 {
	id := nextID.Add(1)
	r.entries.Store(id, cb)
	r.size.Add(1)
	return id
}

// Lookup returns the callback registered under id without consuming it.
func (r *Registry) Lookup(id int64) (driver.Callback, bool) {
	v, ok := r.entries.Load(id)
	if !ok {
		return nil, false
	}
	cb, ok := v.(driver.Callback)
	return cb, ok
}

// Forget drops the entry for id. It reports whether an entry was present.
func (r *Registry) Forget(id int64) bool {
	if _, ok := r.entries.LoadAndDelete(id); ok {
		r.size.Add(-1)
		return true
	}
	return false
}

// Len reports the number of callbacks still waiting to be invoked.
func (r *Registry) Len() int {
	return int(r.size.Load())
}

// Invoke removes the callback registered under id and runs it with id as the
// context id. Unknown ids and panicking callbacks yield an empty string; neither is
// allowed to propagate back into the driver.
func (r *Registry) Invoke(id int64) (result string) {
	v, ok := r.entries.LoadAndDelete(id)
	if !ok {
		metrics.ObserveMissingCallback()
		r.logger.Error("no callback registered for task", zap.Int64("task_id", id))
		return ""
	}
	r.size.Add(-1)

	cb, ok := v.(driver.Callback)
	if !ok || cb == nil {
		r.logger.Error("invalid callback registered for task", zap.Int64("task_id", id))
		return ""
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("callback panicked",
				zap.Int64("task_id", id),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			result = ""
		}
	}()
	return cb(id)
}

// Trampoline returns the callback handed to the driver for every task dispatched
// through this Registry.
func (r *Registry) Trampoline() driver.Callback {
	return r.Invoke
}
