// Package benchmarks provides comparative benchmarks between loom and
// go.uber.org/dig.
//
// Run benchmarks with: go test -bench=. -benchmem ./benchmarks/
package benchmarks

import (
	"context"
	"testing"

	"go.uber.org/dig"

	"github.com/mkarren/loom"
)

// =============================================================================
// Shared Test Types
// =============================================================================

type Logger struct {
	Name string
}

func NewLogger() *Logger {
	return &Logger{Name: "logger"}
}

type Config struct {
	Value string
}

func NewConfig() *Config {
	return &Config{Value: "config"}
}

type Database struct {
	Logger *Logger
	Config *Config
}

func NewDatabase(logger *Logger, config *Config) *Database {
	return &Database{Logger: logger, Config: config}
}

type Cache struct {
	Logger   *Logger
	Config   *Config
	Database *Database
}

func NewCache(logger *Logger, config *Config, db *Database) *Cache {
	return &Cache{Logger: logger, Config: config, Database: db}
}

type UserService struct {
	Logger   *Logger
	Config   *Config
	Database *Database
	Cache    *Cache
}

func NewUserService(logger *Logger, config *Config, db *Database, cache *Cache) *UserService {
	return &UserService{Logger: logger, Config: config, Database: db, Cache: cache}
}

func buildLoom(b *testing.B) *loom.Container {
	b.Helper()

	c, err := loom.NewBuilder().
		Provide(NewLogger, loom.ScopeSingleton).
		Provide(NewConfig, loom.ScopeSingleton).
		Provide(NewDatabase, loom.ScopeSingleton).
		Provide(NewCache, loom.ScopeSingleton).
		Provide(NewUserService, loom.ScopeSingleton).
		Build(context.Background())
	if err != nil {
		b.Fatal(err)
	}
	return c
}

func buildDig(b *testing.B) *dig.Container {
	b.Helper()

	c := dig.New()
	for _, ctor := range []any{NewLogger, NewConfig, NewDatabase, NewCache, NewUserService} {
		if err := c.Provide(ctor); err != nil {
			b.Fatal(err)
		}
	}
	return c
}

// =============================================================================
// Build Benchmarks
// =============================================================================

func BenchmarkBuild_Loom(b *testing.B) {
	b.ReportAllocs()
	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		c, err := loom.NewBuilder().
			Provide(NewLogger, loom.ScopeSingleton).
			Provide(NewConfig, loom.ScopeSingleton).
			Provide(NewDatabase, loom.ScopeSingleton).
			Provide(NewCache, loom.ScopeSingleton).
			Provide(NewUserService, loom.ScopeSingleton).
			LazySingletons().
			Build(ctx)
		if err != nil {
			b.Fatal(err)
		}
		_ = c.Shutdown(ctx)
	}
}

func BenchmarkBuild_Dig(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buildDig(b)
	}
}

// =============================================================================
// Resolution Benchmarks
// =============================================================================

func BenchmarkResolveSingleton_Loom(b *testing.B) {
	ctx := context.Background()
	c := buildLoom(b)
	defer c.Shutdown(ctx)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := loom.Resolve[*UserService](ctx, c); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkResolveSingleton_Dig(b *testing.B) {
	c := buildDig(b)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := c.Invoke(func(svc *UserService) {}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkResolveParallel_Loom(b *testing.B) {
	ctx := context.Background()
	c := buildLoom(b)
	defer c.Shutdown(ctx)

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := loom.Resolve[*UserService](ctx, c); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// =============================================================================
// Request Scope Benchmarks
// =============================================================================

func BenchmarkRequestScopeFork_Loom(b *testing.B) {
	ctx := context.Background()
	c := buildLoom(b)
	defer c.Shutdown(ctx)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scope := c.CreateRequestScope()
		_ = scope.Shutdown(ctx)
	}
}

func BenchmarkRequestScopeResolve_Loom(b *testing.B) {
	ctx := context.Background()
	c, err := loom.NewBuilder().
		Provide(NewLogger, loom.ScopeSingleton).
		Provide(NewConfig, loom.ScopeSingleton).
		Provide(NewDatabase, loom.ScopeRequest).
		Build(ctx)
	if err != nil {
		b.Fatal(err)
	}
	defer c.Shutdown(ctx)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scope := c.CreateRequestScope()
		if _, err := loom.Resolve[*Database](ctx, scope); err != nil {
			b.Fatal(err)
		}
		_ = scope.Shutdown(ctx)
	}
}
