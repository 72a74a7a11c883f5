// Package state holds the in-memory caches the UI reads from. Each store
// mirrors one entity family, runs mutations through its service and keeps the
// cached list at its last known good state when a write fails.
package state

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/practice-local/pkg/errors"
	"github.com/jwalitptl/practice-local/pkg/logger"
	"github.com/jwalitptl/practice-local/pkg/metrics"
)

// ActionError is returned by a failed store action. Its message is meant for
// display; the cause stays reachable through errors.Is and errors.As.
type ActionError struct {
	Message string
	Err     error
}

func (e *ActionError) Error() string { return e.Message }

func (e *ActionError) Unwrap() error { return e.Err }

// Options configures every store.
type Options struct {
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	// Now is the clock the time-based selectors read.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// core is the state machine shared by all stores: Idle, Pending while a
// mutation runs, then Idle again with either a fresh cache or an error.
type core struct {
	name    string
	op      sync.Mutex // serializes mutations
	mu      sync.RWMutex
	loading bool
	err     string
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	memo    *cache.Cache
}

func (c *core) init(name string, opts Options) {
	opts = opts.withDefaults()
	c.name = name
	c.log = opts.Logger.Component(name + "-store")
	c.metrics = opts.Metrics
	c.now = opts.Now
	c.memo = cache.New(cache.NoExpiration, 0)
}

func (c *core) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Error is the message of the last failed action, empty after a success.
func (c *core) Error() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// run executes one action: it acquires the mutation lock, flips the loading
// flag, calls fn and records the outcome. fn must not hold c.mu.
func (c *core) run(op, action string, fn func() error) error {
	c.op.Lock()
	defer c.op.Unlock()

	opID := uuid.NewString()
	c.mu.Lock()
	c.loading = true
	c.err = ""
	c.mu.Unlock()

	err := fn()
	c.metrics.ObserveMutation(c.name, op, err)

	c.mu.Lock()
	c.loading = false
	if err != nil {
		c.err = errors.UserMessage(action, err)
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Warn(err, "store action failed", "op", op, "op_id", opID)
		return &ActionError{Message: errors.UserMessage(action, err), Err: err}
	}
	c.log.Debug("store action done", "op", op, "op_id", opID)
	return nil
}

// replace swaps cached state under the write lock and drops memoized selectors.
func (c *core) replace(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
	c.memo.Flush()
}

// memoize returns the cached result of compute for key. Callers hold c.mu for
// reading, so a concurrent replace cannot slip a stale value in. Results are
// shared and must not be modified.
func memoize[T any](c *core, key string, compute func() T) T {
	if v, ok := c.memo.Get(key); ok {
		return v.(T)
	}
	v := compute()
	c.memo.Set(key, v, cache.NoExpiration)
	return v
}
