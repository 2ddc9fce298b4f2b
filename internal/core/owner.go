package core

import (
	"context"
	"strconv"
)

// OwnerID scopes every stored row. DefaultOwner is the single-user tracker.
type OwnerID int64

const DefaultOwner OwnerID = 0

func (o OwnerID) String() string {
	return strconv.FormatInt(int64(o), 10)
}

type ownerKey struct{}

// WithOwner returns a context carrying the owner for store calls.
func WithOwner(ctx context.Context, owner OwnerID) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFromContext returns the request owner, DefaultOwner if none was set.
func OwnerFromContext(ctx context.Context) OwnerID {
	if owner, ok := ctx.Value(ownerKey{}).(OwnerID); ok {
		return owner
	}
	return DefaultOwner
}
