package pdftext

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePdfToText writes a shell script standing in for poppler's pdftotext.
// It only succeeds for the password "secret".
func fakePdfToText(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	script := `#!/bin/sh
if [ "$2" = "-upw" ] && [ "$3" = "secret" ]; then
	echo "Instalação: 12345678"
	exit 0
fi
if [ "$2" = "-upw" ] || [ "$FAKE_ENCRYPTED" = "1" ]; then
	echo "Command Line Error: Incorrect password" >&2
	exit 1
fi
echo "Syntax Error: Couldn't read xref table" >&2
exit 1
`
	path := filepath.Join(t.TempDir(), "pdftotext")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestPdfToText_BinPath(t *testing.T) {
	p := NewPdfToText("", nil)
	assert.Equal(t, "pdftotext", p.binPath)

	p = NewPdfToText("/custom/pdftotext", []string{"a"})
	assert.Equal(t, "/custom/pdftotext", p.binPath)
	assert.Equal(t, []string{"a"}, p.passwords)
}

func TestPdfToText_PasswordFallback(t *testing.T) {
	t.Setenv("FAKE_ENCRYPTED", "1")
	p := NewPdfToText(fakePdfToText(t), []string{"wrong", "secret"})

	text, err := p.Text(context.Background(), []byte("%PDF-1.7"))
	require.NoError(t, err)
	assert.Contains(t, text, "12345678")
}

func TestPdfToText_NoPasswordMatches(t *testing.T) {
	t.Setenv("FAKE_ENCRYPTED", "1")
	p := NewPdfToText(fakePdfToText(t), []string{"wrong"})

	_, err := p.Text(context.Background(), []byte("%PDF-1.7"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEncrypted)
}

func TestPdfToText_CorruptFileFailsFast(t *testing.T) {
	p := NewPdfToText(fakePdfToText(t), []string{"secret"})

	_, err := p.Text(context.Background(), []byte("not a pdf"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEncrypted)
	assert.Contains(t, err.Error(), "xref")
}

func TestPdfToText_MissingBinary(t *testing.T) {
	p := NewPdfToText(filepath.Join(t.TempDir(), "nope"), nil)
	_, err := p.Text(context.Background(), []byte("%PDF"))
	assert.Error(t, err)
}

func TestIsPasswordError(t *testing.T) {
	assert.True(t, isPasswordError("Command Line Error: Incorrect password"))
	assert.True(t, isPasswordError("Error: PDF file is damaged or encrypted"))
	assert.False(t, isPasswordError("Syntax Error: Couldn't read xref table"))
}
