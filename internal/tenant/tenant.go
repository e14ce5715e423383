// Package tenant resolves per-user isolated data scopes and the encryption
// context that applies to them.
//
// Each user maps 1:1 to a tenant, created lazily on first access. The tenant
// record never stores the user identifier in cleartext: lookups go through a
// keyed hash and a reversible copy is kept encrypted under the root KEK for
// privileged internal paths only.
package tenant

import (
	"context"
	"errors"
)

// Record mirrors the persisted tenant row. The storage layer owns the schema;
// this package only relies on the field contract.
type Record struct {
	TenantID        string // opaque handle, never equal to the user identifier
	UserIDHash      string // keyed hash of the user identifier, unique
	UserIDEncrypted string // keycrypt envelope of the user identifier under the KEK
	DEKEncrypted    string // keycrypt envelope of the tenant DEK under the KEK
}

// ErrNotFound is returned by repository lookups and read-only resolution when
// no tenant exists for the given key.
var ErrNotFound = errors.New("tenant: not found")

// ErrDuplicateUserIDHash is returned by Repository.Insert when another record
// with the same user-ID hash already exists. ResolveOrCreate treats it as
// "someone else created it first" and re-reads instead of failing.
var ErrDuplicateUserIDHash = errors.New("tenant: duplicate user id hash")

// Repository is the narrow storage contract for tenant records. The backing
// store must enforce a uniqueness constraint on UserIDHash.
type Repository interface {
	FindByUserIDHash(ctx context.Context, userIDHash string) (*Record, error)
	FindByTenantID(ctx context.Context, tenantID string) (*Record, error)
	Insert(ctx context.Context, rec *Record) error
}
