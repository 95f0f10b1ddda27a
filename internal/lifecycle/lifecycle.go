// Package lifecycle runs the converter's long-lived components, such as
// watch mode, until a termination signal arrives.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Service is a long-running component. Run blocks until ctx is done or the
// component fails; Close releases its resources afterwards.
type Service interface {
	Run(ctx context.Context) error
	Close() error
}

// FuncService adapts a run/close function pair into the Service interface.
// Either function may be nil.
type FuncService struct {
	RunFn   func(ctx context.Context) error
	CloseFn func() error
}

// Run calls RunFn, or waits for ctx when there is none.
func (f *FuncService) Run(ctx context.Context) error {
	if f.RunFn == nil {
		<-ctx.Done()
		return nil
	}
	return f.RunFn(ctx)
}

// Close calls CloseFn.
func (f *FuncService) Close() error {
	if f.CloseFn == nil {
		return nil
	}
	return f.CloseFn()
}

// Lifecycle runs services together. Services are closed in reverse order of
// registration.
type Lifecycle struct {
	logger   *zap.Logger
	services []namedService
	signals  []os.Signal
	mu       sync.Mutex
}

type namedService struct {
	name    string
	service Service
}

// New creates a Lifecycle stopped by SIGINT or SIGTERM.
//
// Precondition: logger must be non-nil.
func New(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		logger:  logger,
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// Add registers a named service.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// Run starts every service and blocks until a signal arrives, ctx is done
// or a service fails or returns. Then every service's context is cancelled,
// Run waits for them and closes them in reverse order.
//
// Postcondition: all services are closed; the error joins every service
// failure and close error.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()
	l.mu.Lock()
	services := append([]namedService(nil), l.services...)
	l.mu.Unlock()

	ctx, stop := signal.NotifyContext(ctx, l.signals...)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		errs = make([]error, len(services))
	)
	for i, ns := range services {
		i, ns := i, ns
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			l.logger.Info("starting service", zap.String("service", ns.name))
			svcStart := time.Now()
			if err := ns.service.Run(ctx); err != nil {
				l.logger.Error("service failed",
					zap.String("service", ns.name),
					zap.Error(err),
					zap.Duration("uptime", time.Since(svcStart)),
				)
				errs[i] = fmt.Errorf("service %s: %w", ns.name, err)
			}
		}()
	}
	l.logger.Info("all services started",
		zap.Int("count", len(services)),
		zap.Duration("startup", time.Since(start)),
	)

	<-ctx.Done()
	l.logger.Info("shutting down", zap.NamedError("cause", context.Cause(ctx)))
	wg.Wait()

	for i := len(services) - 1; i >= 0; i-- {
		ns := services[i]
		if err := ns.service.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", ns.name, err))
		}
		l.logger.Debug("service closed", zap.String("service", ns.name))
	}
	l.logger.Info("shutdown complete", zap.Duration("total_uptime", time.Since(start)))
	return errors.Join(errs...)
}
