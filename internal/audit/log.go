package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kitahub.org/internal/ids"
	"kitahub.org/internal/obs"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Config is injected at construction; the log never consults global state,
// so deployments can disable auditing per instance and tests stay isolated.
type Config struct {
	Enabled bool
}

// Log is the append-only audit trail the core writes to.
type Log struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// New builds a Log over the given store.
func New(store Store, cfg Config, opts ...Option) (*Log, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidEntry)
	}
	l := &Log{store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

type requestMetaKey struct{}

type requestMeta struct {
	ip        string
	userAgent string
}

// WithRequestMeta attaches the client address and user agent so entries
// appended further down the call chain carry them.
func WithRequestMeta(ctx context.Context, ip, userAgent string) context.Context {
	ip = strings.TrimSpace(ip)
	userAgent = strings.TrimSpace(userAgent)
	if ip == "" && userAgent == "" {
		return ctx
	}
	return context.WithValue(ctx, requestMetaKey{}, requestMeta{ip: ip, userAgent: userAgent})
}

func metaFromContext(ctx context.Context) requestMeta {
	if ctx == nil {
		return requestMeta{}
	}
	if m, ok := ctx.Value(requestMetaKey{}).(requestMeta); ok {
		return m
	}
	return requestMeta{}
}

// Append validates and persists one entry. A store failure surfaces as
// ErrWriteFailure and is never swallowed; callers on the access decision
// paths must treat it as fatal for the enclosing decision.
func (l *Log) Append(ctx context.Context, e Entry) error {
	if !l.cfg.Enabled {
		return nil
	}
	if !e.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidEntry, e.Action)
	}
	if !MatchesAction(e.Action, e.Details) {
		return fmt.Errorf("%w: %T does not belong to action %q", ErrInvalidEntry, e.Details, e.Action)
	}
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now().UTC()
	}
	meta := metaFromContext(ctx)
	if e.IPAddress == "" {
		e.IPAddress = meta.ip
	}
	if e.UserAgent == "" {
		e.UserAgent = meta.userAgent
	}

	if err := l.store.Append(ctx, e); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}

	obs.LogEvent(map[string]any{
		"ts":        e.CreatedAt.Format(time.RFC3339Nano),
		"type":      "audit",
		"action":    string(e.Action),
		"person_id": e.PersonID,
		"success":   e.Success,
	})
	return nil
}

// List is the read-only reporting projection.
func (l *Log) List(ctx context.Context, q Query) ([]Entry, error) {
	if q.Action != "" && !q.Action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidEntry, q.Action)
	}
	if q.Limit <= 0 || q.Limit > maxListLimit {
		q.Limit = defaultListLimit
	}
	return l.store.List(ctx, q)
}
