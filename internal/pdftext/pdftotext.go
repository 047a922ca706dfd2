// Package pdftext turns invoice PDFs into plain text for the field extractor.
//
// pdftotext only takes a password as an argument (-upw), so while a protected
// file is being opened the password is visible in the host's process list.
// The unprotected attempt always runs first, and each password attempt is a
// short-lived process. Run on a host whose process table is not shared.
package pdftext

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrEncrypted means none of the configured passwords opened the PDF.
var ErrEncrypted = eris.New("pdftext: encrypted pdf, no password matched")

// Extractor extracts text content from PDF bytes.
type Extractor interface {
	Text(ctx context.Context, pdf []byte) (string, error)
}

// PdfToText extracts text using the pdftotext CLI (poppler). Protected
// invoices are opened by trying each password in order.
type PdfToText struct {
	binPath   string
	passwords []string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string, passwords []string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath, passwords: passwords}
}

// Text writes the PDF to a temp file and runs pdftotext -layout on it, first
// without a password and then with each configured one.
func (p *PdfToText) Text(ctx context.Context, pdf []byte) (string, error) {
	f, err := os.CreateTemp("", "enel-*.pdf")
	if err != nil {
		return "", eris.Wrap(err, "pdftext: create temp file")
	}
	defer os.Remove(f.Name()) //nolint:errcheck

	if _, err := f.Write(pdf); err != nil {
		f.Close() //nolint:errcheck
		return "", eris.Wrap(err, "pdftext: write temp file")
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrap(err, "pdftext: close temp file")
	}

	candidates := append([]string{""}, p.passwords...)
	var lastErr error
	for i, pw := range candidates {
		text, stderr, err := p.run(ctx, f.Name(), pw)
		if err == nil {
			if i > 0 {
				zap.L().Debug("pdftext: opened protected pdf", zap.Int("password_index", i-1))
			}
			return text, nil
		}
		if ctx.Err() != nil {
			return "", eris.Wrap(ctx.Err(), "pdftext: cancelled")
		}
		if !isPasswordError(stderr) {
			return "", eris.Wrapf(err, "pdftext: pdftotext failed: %s", strings.TrimSpace(stderr))
		}
		lastErr = err
	}
	return "", eris.Wrapf(ErrEncrypted, "tried %d passwords: %v", len(p.passwords), lastErr)
}

func (p *PdfToText) run(ctx context.Context, path, password string) (string, string, error) {
	args := []string{"-layout"}
	if password != "" {
		args = append(args, "-upw", password)
	}
	args = append(args, path, "-")
	cmd := exec.CommandContext(ctx, p.binPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func isPasswordError(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "password") || strings.Contains(s, "encrypted")
}
