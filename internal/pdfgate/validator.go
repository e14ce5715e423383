package pdfgate

import (
	"bytes"
	"errors"
	"fmt"

	"rsc.io/pdf"
)

// readerValidator validates document encryption state with rsc.io/pdf.
// The library can attempt passwords against the standard security handler
// but never exposes raw decrypted content, which is why structural
// decryption lives in a separate collaborator.
type readerValidator struct{}

func (readerValidator) Open(data []byte, password string) (err error) {
	// The underlying parser panics on some malformed inputs; surface those
	// as ordinary parse errors so the gate can treat them as terminal.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed document: %v", r)
		}
	}()

	r := bytes.NewReader(data)
	if password == "" {
		_, err = pdf.NewReader(r, int64(len(data)))
	} else {
		attempted := false
		_, err = pdf.NewReaderEncrypted(r, int64(len(data)), func() string {
			if attempted {
				return ""
			}
			attempted = true
			return password
		})
	}
	if errors.Is(err, pdf.ErrInvalidPassword) {
		return ErrIncorrectPassword
	}
	return err
}
