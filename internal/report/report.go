// Package report sends crashes and unexpected errors to Sentry.
// Without a DSN every call still logs locally and nothing is sent.
package report

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/atomic"

	"github.com/teslashibe/go-motion/internal/log"
)

// FlushTimeout bounds how long a crash report may block the recovering goroutine.
const FlushTimeout = 5 * time.Second

var enabled atomic.Bool

// Init configures the Sentry client. An empty dsn leaves reporting disabled.
func Init(dsn, environment, release string) error {
	if dsn == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	})
	if err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	enabled.Store(true)
	log.Info("crash reporting enabled", "environment", environment)
	return nil
}

// Enabled reports whether events are sent anywhere.
func Enabled() bool {
	return enabled.Load()
}

func hubFor(component string) *sentry.Hub {
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
	})
	return hub
}

// Recover must be deferred directly. It swallows a panic, logs it and
// reports it tagged with component.
func Recover(component string) {
	if r := recover(); r != nil {
		crashed(component, r)
	}
}

// RecoverTo is Recover that also passes the panic to fail as an error. It
// must be deferred directly.
func RecoverTo(component string, fail func(error)) {
	if r := recover(); r != nil {
		fail(crashed(component, r))
	}
}

func crashed(component string, r any) error {
	log.Error("recovered panic", "component", component, "panic", r)
	err := fmt.Errorf("%s crashed: %v", component, r)
	if enabled.Load() {
		hub := hubFor(component)
		hub.Recover(err)
		hub.Flush(FlushTimeout)
	}
	return err
}

// Error reports a non-fatal error.
func Error(component string, err error) {
	if err == nil || !enabled.Load() {
		return
	}
	hubFor(component).CaptureException(err)
}

// Flush waits for queued events before shutdown.
func Flush() {
	if enabled.Load() {
		sentry.Flush(FlushTimeout)
	}
}
