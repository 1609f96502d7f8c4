package rbac

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Resolver evaluates permission grants with the precedence all > group >
// own. The full candidate set is scanned: a principal holding a broad grant
// must never be denied because a narrower, unrelated assignment also exists.
//
// Stateless per call; safe for concurrent use.
type Resolver struct {
	store Store
	now   func() time.Time
}

// NewResolver builds a Resolver over the given store. A nil clock defaults
// to time.Now.
func NewResolver(store Store, now func() time.Time) (*Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	if now == nil {
		now = time.Now
	}
	return &Resolver{store: store, now: now}, nil
}

// Resolve decides whether personID may perform action on resource within
// the given context. Any store failure denies: the resolver never defaults
// to permissive.
func (r *Resolver) Resolve(ctx context.Context, personID, resource string, action Action, rc Context) (Decision, error) {
	personID = strings.TrimSpace(personID)
	resource = strings.TrimSpace(resource)
	if personID == "" || resource == "" || !action.Valid() {
		return Decision{}, fmt.Errorf("%w: personID, resource and a valid action are required", ErrInvalidInput)
	}

	assignments, err := r.store.AssignmentsForPerson(ctx, personID)
	if err != nil {
		return Decision{}, fmt.Errorf("load assignments: %w", err)
	}

	now := r.now()
	var groupMatch, ownMatch bool
	for _, a := range assignments {
		if !a.Active {
			continue
		}
		if a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
			// Lazily invalidated; the stale row stays in storage.
			continue
		}
		perms, err := r.store.RolePermissions(ctx, a.RoleID, resource, action)
		if err != nil {
			return Decision{}, fmt.Errorf("load permissions for role %s: %w", a.RoleID, err)
		}
		for _, p := range perms {
			if !p.Active {
				continue
			}
			switch p.Scope {
			case ScopeAll:
				// Highest precedence; nothing can override it.
				return Decision{Allowed: true, MatchedScope: ScopeAll}, nil
			case ScopeGroup:
				if a.GroupID == nil {
					groupMatch = true
				} else if rc.TargetGroupID != nil && *a.GroupID == *rc.TargetGroupID {
					groupMatch = true
				}
			case ScopeOwn:
				if rc.IsOwner {
					ownMatch = true
				}
			}
		}
	}

	if groupMatch {
		return Decision{Allowed: true, MatchedScope: ScopeGroup}, nil
	}
	if ownMatch {
		return Decision{Allowed: true, MatchedScope: ScopeOwn}, nil
	}
	return Decision{Allowed: false, MatchedScope: ScopeNone}, nil
}
