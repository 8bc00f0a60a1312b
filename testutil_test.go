package loom_test

import (
	"context"
	"sync"
	"sync/atomic"
)

// ============================================================================
// Shared Test Types
// ============================================================================

// TConfig is a leaf service with no dependencies.
type TConfig struct {
	Env string
}

func NewTConfig() *TConfig {
	return &TConfig{Env: "test"}
}

// TLogger depends on TConfig.
type TLogger struct {
	Cfg *TConfig
}

func NewTLogger(cfg *TConfig) *TLogger {
	return &TLogger{Cfg: cfg}
}

// TService depends on both.
type TService struct {
	Cfg *TConfig
	Log *TLogger
}

func NewTService(cfg *TConfig, log *TLogger) *TService {
	return &TService{Cfg: cfg, Log: log}
}

// TCounter counts how many times its constructor ran.
type TCounter struct {
	n *int64
}

func newCountingCtor(n *int64) func() *TCounter {
	return func() *TCounter {
		atomic.AddInt64(n, 1)
		return &TCounter{n: n}
	}
}

// TCloser records Close calls in a shared ordered log.
type TCloser struct {
	Name string
	log  *closeLog
}

func (c *TCloser) Close() error {
	c.log.record(c.Name)
	return nil
}

type closeLog struct {
	mu    sync.Mutex
	order []string
}

func (l *closeLog) record(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = append(l.order, name)
}

func (l *closeLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.order...)
}

// TStartStop implements the Startable and Stoppable capabilities.
type TStartStop struct {
	started atomic.Bool
	stopped atomic.Bool
}

func (s *TStartStop) Start(ctx context.Context) error {
	s.started.Store(true)
	return nil
}

func (s *TStartStop) Stop(ctx context.Context) error {
	s.stopped.Store(true)
	return nil
}

// TFailingStarter is Startable with a failing Start hook.
type TFailingStarter struct {
	Err error
}

func (s *TFailingStarter) Start(context.Context) error { return s.Err }

// TInitable implements Initializable and records whether Init ran.
type TInitable struct {
	Initialized bool
	InitErr     error
}

func (s *TInitable) Init(ctx context.Context) error {
	if s.InitErr != nil {
		return s.InitErr
	}
	s.Initialized = true
	return nil
}
