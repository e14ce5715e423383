package pdfgate

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfcpuDecrypter strips the encryption filter with pdfcpu, rewriting the
// document into an unencrypted copy. The gate validates the password first;
// pdfcpu failures reaching the caller mean the document itself is bad.
type pdfcpuDecrypter struct{}

func (pdfcpuDecrypter) Decrypt(ctx context.Context, data []byte, password string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conf := model.NewDefaultConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password
	conf.ValidationMode = model.ValidationRelaxed

	var out bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(data), &out, conf); err != nil {
		return nil, fmt.Errorf("pdfgate: rewriting document: %w", err)
	}
	return out.Bytes(), nil
}
