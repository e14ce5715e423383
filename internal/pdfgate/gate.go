// Package pdfgate gates password-protected PDF documents before extraction.
//
// Password validation and structural decryption deliberately go through two
// different parsing strategies: the validating library classifies encryption
// state but cannot write out decrypted content, while the rewriting library
// produces an unencrypted copy but cannot cleanly validate passwords against
// every encryption variant. Both must agree before content is trusted.
package pdfgate

import (
	"context"
	"errors"
	"fmt"
)

// ErrPasswordRequired indicates the document is encrypted and no usable
// password was supplied. Recoverable: prompt the user and re-run the check.
var ErrPasswordRequired = errors.New("pdfgate: password required")

// ErrIncorrectPassword indicates the supplied password failed validation.
// Recoverable by re-prompting; distinct from a malformed document so the
// user gets an actionable message.
var ErrIncorrectPassword = errors.New("pdfgate: incorrect password")

// CheckResult is the exhaustive tri-state outcome of a gate check:
// {encrypted:false}, {encrypted:true, needsPassword:true} or
// {encrypted:true, needsPassword:false}.
type CheckResult struct {
	Encrypted     bool `json:"encrypted"`
	NeedsPassword bool `json:"needsPassword,omitempty"`
}

// PasswordValidator classifies a document's encryption state. Open returns
// nil when the document parses with the given password ("" meaning none),
// ErrIncorrectPassword when the document is encrypted and the password does
// not grant access, and any other parse failure unchanged.
type PasswordValidator interface {
	Open(data []byte, password string) error
}

// StructuralDecrypter rewrites an encrypted document into an unencrypted
// copy with identical content, given the correct password. It is a
// structural strip, not a cryptographic defeat of unknown passwords.
type StructuralDecrypter interface {
	Decrypt(ctx context.Context, data []byte, password string) ([]byte, error)
}

// Gate combines the two collaborators into the document access checkpoint.
type Gate struct {
	validator PasswordValidator
	decrypter StructuralDecrypter
}

// New creates a Gate over explicit collaborators; tests substitute stubs.
func New(validator PasswordValidator, decrypter StructuralDecrypter) *Gate {
	return &Gate{validator: validator, decrypter: decrypter}
}

// NewDefault wires the production collaborators.
func NewDefault() *Gate {
	return New(readerValidator{}, pdfcpuDecrypter{})
}

// CheckPassword classifies the document. password may be empty, meaning no
// password is available. It returns ErrIncorrectPassword when a supplied
// password fails; a parse failure unrelated to passwords propagates
// unchanged (the document itself is bad, not the credentials).
func (g *Gate) CheckPassword(data []byte, password string) (CheckResult, error) {
	err := g.validator.Open(data, "")
	if err == nil {
		return CheckResult{Encrypted: false}, nil
	}
	if !errors.Is(err, ErrIncorrectPassword) {
		return CheckResult{}, fmt.Errorf("pdfgate: opening document: %w", err)
	}

	// Encrypted. Without a candidate password there is nothing to validate.
	if password == "" {
		return CheckResult{Encrypted: true, NeedsPassword: true}, nil
	}

	err = g.validator.Open(data, password)
	if err == nil {
		return CheckResult{Encrypted: true, NeedsPassword: false}, nil
	}
	if errors.Is(err, ErrIncorrectPassword) {
		return CheckResult{}, ErrIncorrectPassword
	}
	return CheckResult{}, fmt.Errorf("pdfgate: validating password: %w", err)
}

// Decrypt re-validates the password, then rewrites the document structure
// while dropping the encryption filter, yielding plaintext bytes suitable
// for downstream extraction. Unencrypted input passes through unchanged.
func (g *Gate) Decrypt(ctx context.Context, data []byte, password string) ([]byte, error) {
	res, err := g.CheckPassword(data, password)
	if err != nil {
		return nil, err
	}
	if !res.Encrypted {
		return data, nil
	}
	if res.NeedsPassword {
		return nil, ErrPasswordRequired
	}
	return g.decrypter.Decrypt(ctx, data, password)
}
