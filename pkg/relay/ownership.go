package relay

import (
	"context"
	"errors"

	"github.com/stacklok/mcp-session-gateway/pkg/kvstore"
)

// Ownership anchors which authenticated user a live session belongs
// to. It is kept separate from liveness: a session can be owned but
// dead (no subscribers left), at which point it is gone for good.
type Ownership struct {
	store kvstore.Store
	live  func(ctx context.Context, sid string) (bool, error)
}

// NewOwnership wires session ownership records to store and the given
// liveness predicate (ordinarily (*ClientRelay).IsLive).
func NewOwnership(store kvstore.Store, live func(ctx context.Context, sid string) (bool, error)) *Ownership {
	return &Ownership{store: store, live: live}
}

// SetSessionOwner records userID as sid's owner. Called once, at
// initialize time; the record has no TTL — it lives until the session
// is explicitly torn down.
func (o *Ownership) SetSessionOwner(ctx context.Context, sid, userID string) error {
	return o.store.Save(ctx, kvstore.ClassSessionOwner, sid, []byte(userID), 0)
}

// GetSessionOwner returns the userID recorded for sid, or
// kvstore.ErrNotFound if no session with that id was ever initialized.
func (o *Ownership) GetSessionOwner(ctx context.Context, sid string) (string, error) {
	b, err := o.store.Load(ctx, kvstore.ClassSessionOwner, sid)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// IsSessionOwnedBy reports whether sid is both live and owned by
// userID. A dead session (no live subscribers) is never "owned" by
// anyone, even if its owner record has not yet been cleaned up.
func (o *Ownership) IsSessionOwnedBy(ctx context.Context, sid, userID string) (bool, error) {
	live, err := o.live(ctx, sid)
	if err != nil {
		return false, err
	}
	if !live {
		return false, nil
	}

	owner, err := o.GetSessionOwner(ctx, sid)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return owner == userID, nil
}

// ClearSessionOwner removes sid's ownership record, called when a
// session is explicitly torn down (DELETE /mcp, inactivity shutdown).
func (o *Ownership) ClearSessionOwner(ctx context.Context, sid string) error {
	return o.store.Delete(ctx, kvstore.ClassSessionOwner, sid)
}
