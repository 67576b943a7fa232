package monitoring

import (
	"errors"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/fieldalloc/config"
	"github.com/kilianp07/fieldalloc/core/apperr"
	coremon "github.com/kilianp07/fieldalloc/core/monitoring"
)

// NewSentryMonitor initializes Sentry using the provided configuration and
// returns a Monitor implementation. Client-side failures such as unknown
// bookings or rejected requests are not reported.
func NewSentryMonitor(cfg config.SentryConfig) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate,
		Release:          cfg.Release,
		ServerName:       cfg.ServerName,
		BeforeSend:       dropClientErrors,
	})
	if err != nil {
		return nil, err
	}
	return &sentryMonitor{}, nil
}

func dropClientErrors(ev *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if hint == nil || hint.OriginalException == nil {
		return ev
	}
	if reportable(hint.OriginalException) {
		return ev
	}
	return nil
}

func reportable(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.NotFound, apperr.ValidationFailure, apperr.ConcurrencyConflict:
		return false
	}
	return !errors.Is(err, apperr.ErrNoViableCandidate)
}

type sentryMonitor struct{}

func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_kind", string(apperr.KindOf(err)))
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

func (s *sentryMonitor) Recover() {
	if r := recover(); r != nil {
		sentry.CurrentHub().Recover(r)
		sentry.Flush(2 * time.Second)
		panic(r)
	}
}

func (s *sentryMonitor) Flush(timeout time.Duration) { sentry.Flush(timeout) }
