package tenant

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-ingest/internal/keycrypt"
)

// Context is the resolved encryption context for one tenant.
type Context struct {
	TenantID string
	DEK      keycrypt.Key
}

// Manager resolves or provisions per-user data-encryption keys. The root KEK
// is threaded in explicitly so tests can supply deterministic keys; there is
// no ambient key access from deep call sites.
type Manager struct {
	kek  keycrypt.Key
	repo Repository
}

// NewManager creates a Manager over the given repository using kek as the
// root key-encryption key.
func NewManager(kek keycrypt.Key, repo Repository) *Manager {
	return &Manager{kek: kek, repo: repo}
}

// HashUserID computes the keyed lookup hash for a user identifier. The hash
// allows equality lookup without ever persisting the identifier in cleartext.
func (m *Manager) HashUserID(userID string) string {
	mac := hmac.New(sha256.New, m.kek[:])
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

// ResolveOrCreate returns the tenant context for userID, provisioning a new
// tenant with a fresh random DEK on first access.
//
// Concurrent first-accesses for the same user may both observe "not found"
// and race on insert; the loser sees ErrDuplicateUserIDHash from the store's
// uniqueness constraint and re-reads the winner's record, so at most one
// tenant ever exists per user.
func (m *Manager) ResolveOrCreate(ctx context.Context, userID string) (Context, error) {
	hash := m.HashUserID(userID)

	rec, err := m.repo.FindByUserIDHash(ctx, hash)
	if err == nil {
		return m.contextFrom(rec)
	}
	if !errors.Is(err, ErrNotFound) {
		return Context{}, fmt.Errorf("tenant: looking up user hash: %w", err)
	}

	dek, err := keycrypt.NewRandomKey()
	if err != nil {
		return Context{}, err
	}
	userIDEnc, err := keycrypt.Encrypt([]byte(userID), m.kek)
	if err != nil {
		return Context{}, fmt.Errorf("tenant: encrypting user id: %w", err)
	}
	dekEnc, err := keycrypt.Encrypt(dek[:], m.kek)
	if err != nil {
		return Context{}, fmt.Errorf("tenant: wrapping DEK: %w", err)
	}

	rec = &Record{
		TenantID:        uuid.NewString(),
		UserIDHash:      hash,
		UserIDEncrypted: userIDEnc,
		DEKEncrypted:    dekEnc,
	}

	err = m.repo.Insert(ctx, rec)
	if errors.Is(err, ErrDuplicateUserIDHash) {
		// Lost the creation race; the other writer's record is authoritative.
		rec, err = m.repo.FindByUserIDHash(ctx, hash)
		if err != nil {
			return Context{}, fmt.Errorf("tenant: re-reading after insert race: %w", err)
		}
		return m.contextFrom(rec)
	}
	if err != nil {
		return Context{}, fmt.Errorf("tenant: inserting record: %w", err)
	}

	return Context{TenantID: rec.TenantID, DEK: dek}, nil
}

// ResolveByUserID is the read-only variant of ResolveOrCreate; it never
// creates and returns ErrNotFound when no tenant exists for userID.
func (m *Manager) ResolveByUserID(ctx context.Context, userID string) (Context, error) {
	rec, err := m.repo.FindByUserIDHash(ctx, m.HashUserID(userID))
	if err != nil {
		return Context{}, err
	}
	return m.contextFrom(rec)
}

// ReverseLookup decrypts the stored user identifier for a tenant. Privileged
// internal paths only; never exposed to end users.
func (m *Manager) ReverseLookup(ctx context.Context, tenantID string) (string, error) {
	rec, err := m.repo.FindByTenantID(ctx, tenantID)
	if err != nil {
		return "", err
	}
	userID, err := keycrypt.Decrypt(rec.UserIDEncrypted, m.kek)
	if err != nil {
		return "", fmt.Errorf("tenant: decrypting user id for %s: %w", tenantID, err)
	}
	return string(userID), nil
}

func (m *Manager) contextFrom(rec *Record) (Context, error) {
	raw, err := keycrypt.Decrypt(rec.DEKEncrypted, m.kek)
	if err != nil {
		return Context{}, fmt.Errorf("tenant: unwrapping DEK for %s: %w", rec.TenantID, err)
	}
	if len(raw) != keycrypt.KeySize {
		return Context{}, fmt.Errorf("tenant: stored DEK for %s has %d bytes, want %d", rec.TenantID, len(raw), keycrypt.KeySize)
	}
	var dek keycrypt.Key
	copy(dek[:], raw)
	return Context{TenantID: rec.TenantID, DEK: dek}, nil
}
