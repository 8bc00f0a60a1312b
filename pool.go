package loom

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// PoolStrategy selects which idle instance an acquire reuses.
type PoolStrategy int

const (
	// PoolFIFO reuses the oldest idle instance first.
	PoolFIFO PoolStrategy = iota

	// PoolLIFO reuses the most recently released instance first, which keeps
	// the working set warm.
	PoolLIFO
)

func (s PoolStrategy) String() string {
	switch s {
	case PoolFIFO:
		return "fifo"
	case PoolLIFO:
		return "lifo"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// PoolFactory builds one pooled instance. It blocks on ctx like any other
// suspending constructor.
type PoolFactory func(ctx context.Context) (any, error)

// PoolProvider maintains a bounded pool of instances built by a factory.
//
// Instantiate pops an idle instance without blocking when one is available,
// creates a new instance while under capacity, and otherwise blocks until a
// Release occurs or ctx is cancelled. Live plus idle instances never exceed
// the configured maximum. Pooled values are never container-cached; callers
// hand instances back with Release.
type PoolProvider struct {
	meta     *ProviderMeta
	factory  PoolFactory
	strategy PoolStrategy
	max      int

	// slots holds one token per unit of capacity. Acquiring a token is the
	// (cancellable) wait when the pool is exhausted.
	slots chan struct{}

	mu     sync.Mutex
	idle   []any
	closed int32
}

// NewPool builds a PoolProvider for the given token. maxSize bounds live
// plus idle instances; it must be positive.
func NewPool(token Token, factory PoolFactory, maxSize int, strategy PoolStrategy, opts ...ProviderOption) (*PoolProvider, error) {
	if token == "" {
		return nil, ErrTokenEmpty
	}
	if factory == nil {
		return nil, ErrConstructorNil
	}
	if maxSize <= 0 {
		return nil, fmt.Errorf("pool %q: max size must be positive, got %d", token, maxSize)
	}

	cfg := applyProviderOptions(opts)
	meta := buildMeta(cfg, token, ScopePooled, "", 1)

	slots := make(chan struct{}, maxSize)
	for i := 0; i < maxSize; i++ {
		slots <- struct{}{}
	}

	return &PoolProvider{
		meta:     meta,
		factory:  factory,
		strategy: strategy,
		max:      maxSize,
		slots:    slots,
	}, nil
}

func (p *PoolProvider) Meta() *ProviderMeta { return p.meta }

func (p *PoolProvider) Dependencies() []Dep { return nil }

// Instantiate acquires an instance from the pool, blocking on ctx when the
// pool is exhausted and at capacity.
func (p *PoolProvider) Instantiate(ctx context.Context, rc *ResolveCtx) (any, error) {
	if atomic.LoadInt32(&p.closed) != 0 {
		return nil, ErrPoolClosed
	}

	// Fast path: a slot is free right now.
	select {
	case <-p.slots:
	default:
		// At capacity. Block until a release frees a slot.
		select {
		case <-p.slots:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if atomic.LoadInt32(&p.closed) != 0 {
		p.slots <- struct{}{}
		return nil, ErrPoolClosed
	}

	if inst, ok := p.popIdle(); ok {
		return inst, nil
	}

	inst, err := p.factory(ctx)
	if err != nil {
		// The slot goes back so the failed attempt does not shrink capacity.
		p.slots <- struct{}{}
		return nil, err
	}

	if init, ok := inst.(Initializable); ok {
		if err := init.Init(ctx); err != nil {
			p.discard(inst)
			p.slots <- struct{}{}
			return nil, err
		}
	}

	return inst, nil
}

// Release returns an instance to the pool. An instance released into a full
// or closed pool is discarded (and closed if it is Disposable).
func (p *PoolProvider) Release(instance any) {
	if instance == nil {
		return
	}

	if atomic.LoadInt32(&p.closed) != 0 {
		p.discard(instance)
		return
	}

	p.mu.Lock()
	if len(p.idle) >= p.max {
		p.mu.Unlock()
		p.discard(instance)
		return
	}
	p.idle = append(p.idle, instance)
	p.mu.Unlock()

	// Free a slot for the next waiter. The default arm covers releases of
	// instances that were never acquired; capacity must not grow past max.
	select {
	case p.slots <- struct{}{}:
	default:
	}
}

// Shutdown drains and closes all pooled instances. Safe to call repeatedly.
func (p *PoolProvider) Shutdown() error {
	if !atomic.CompareAndSwapInt32(&p.closed, 0, 1) {
		return nil
	}

	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var errs []error
	for _, inst := range idle {
		if d, ok := inst.(Disposable); ok {
			if err := d.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return &DisposalError{Context: "pool " + string(p.meta.Token), Errors: errs}
	}

	return nil
}

// Idle returns the number of idle instances currently held.
func (p *PoolProvider) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

func (p *PoolProvider) popIdle() (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.idle)
	if n == 0 {
		return nil, false
	}

	var inst any
	switch p.strategy {
	case PoolLIFO:
		inst = p.idle[n-1]
		p.idle = p.idle[:n-1]
	default: // PoolFIFO
		inst = p.idle[0]
		p.idle = p.idle[1:]
	}

	return inst, true
}

func (p *PoolProvider) discard(instance any) {
	if d, ok := instance.(Disposable); ok {
		_ = d.Close()
	}
}
