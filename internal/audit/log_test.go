package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"kitahub.org/internal/obs"
)

type memStore struct {
	entries   []Entry
	appendErr error
}

func (s *memStore) Append(_ context.Context, e Entry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *memStore) List(_ context.Context, q Query) ([]Entry, error) {
	if q.Limit > 0 && len(s.entries) > q.Limit {
		return s.entries[:q.Limit], nil
	}
	return s.entries, nil
}

func TestAppendStampsAndPersists(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := &memStore{}
	log, err := New(store, Config{Enabled: true}, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := WithRequestMeta(context.Background(), "10.0.0.8", "kita-mobile/2.1")
	err = log.Append(ctx, Entry{
		PersonID: "person-42",
		Action:   ActionLogin,
		Success:  true,
		Details:  SessionDetails{TokenID: "jti-1"},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if len(store.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(store.entries))
	}
	e := store.entries[0]
	if e.ID == "" {
		t.Fatal("expected generated id")
	}
	if !e.CreatedAt.Equal(now) {
		t.Fatalf("expected stamped CreatedAt, got %v", e.CreatedAt)
	}
	if e.IPAddress != "10.0.0.8" || e.UserAgent != "kita-mobile/2.1" {
		t.Fatalf("request meta not carried: %+v", e)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("mirror line not JSON: %v", err)
	}
	if line["type"] != "audit" || line["action"] != "login" {
		t.Fatalf("unexpected mirror line: %v", line)
	}
}

func TestAppendWrapsStoreFailure(t *testing.T) {
	log, err := New(&memStore{appendErr: errors.New("disk full")}, Config{Enabled: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = log.Append(context.Background(), Entry{Action: ActionAccessDenied, Details: AccessDetails{Resource: "children", Action: "read"}})
	if !errors.Is(err, ErrWriteFailure) {
		t.Fatalf("expected ErrWriteFailure, got %v", err)
	}
}

func TestAppendRejectsMismatchedDetails(t *testing.T) {
	log, err := New(&memStore{}, Config{Enabled: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = log.Append(context.Background(), Entry{Action: ActionLogin, Details: RoleChangeDetails{RoleID: "teacher"}})
	if !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
	err = log.Append(context.Background(), Entry{Action: "reboot"})
	if !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry for unknown action, got %v", err)
	}
}

func TestAppendDisabledIsNoop(t *testing.T) {
	store := &memStore{}
	log, err := New(store, Config{Enabled: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := log.Append(context.Background(), Entry{Action: ActionLogin}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(store.entries) != 0 {
		t.Fatal("disabled log must not persist")
	}
}

func TestListAppliesDefaultLimit(t *testing.T) {
	store := &memStore{}
	for i := 0; i < defaultListLimit+5; i++ {
		store.entries = append(store.entries, Entry{Action: ActionLogin})
	}
	log, err := New(store, Config{Enabled: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	entries, err := log.List(context.Background(), Query{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != defaultListLimit {
		t.Fatalf("expected default limit applied, got %d", len(entries))
	}
	if _, err := log.List(context.Background(), Query{Action: "reboot"}); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry for unknown action, got %v", err)
	}
}
