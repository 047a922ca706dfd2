package collab

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemBlobStore_ReadWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemBlobStore()

	_, err := m.Read(ctx, "Faturas/2025/03/a.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	data := []byte("pdf")
	require.NoError(t, m.Write(ctx, "/Faturas/2025/03/a.pdf", data))
	data[0] = 'x'

	got, err := m.Read(ctx, "Faturas/2025/03/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf"), got)
}

func TestMemBlobStore_Rename(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemBlobStore()

	require.NoError(t, m.Write(ctx, "Controle/controle_03_2025.xlsx", []byte("v1")))
	require.NoError(t, m.Rename(ctx, "Controle/controle_03_2025.xlsx", "controle_03_2025_old.xlsx"))

	_, err := m.Read(ctx, "Controle/controle_03_2025.xlsx")
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := m.Read(ctx, "Controle/controle_03_2025_old.xlsx")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	assert.ErrorIs(t, m.Rename(ctx, "missing.xlsx", "x.xlsx"), ErrNotFound)
}

func TestMemBlobStore_List(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemBlobStore()

	require.NoError(t, m.Write(ctx, "Faturas/2025/03/b.pdf", []byte("bb")))
	require.NoError(t, m.Write(ctx, "Faturas/2025/03/a.pdf", []byte("a")))
	require.NoError(t, m.Write(ctx, "Faturas/2025/04/c.pdf", []byte("c")))
	require.NoError(t, m.Write(ctx, "relacionamento.xlsx", []byte("x")))

	entries, err := m.List(ctx, "Faturas/2025/03")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.pdf", entries[0].Name)
	assert.Equal(t, "Faturas/2025/03/a.pdf", entries[0].Path)
	assert.Equal(t, int64(2), entries[1].Size)

	entries, err = m.List(ctx, "Faturas/2025")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].IsFolder)
	assert.Equal(t, "03", entries[0].Name)

	entries, err = m.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Faturas", entries[0].Name)
	assert.Equal(t, "relacionamento.xlsx", entries[1].Name)
}
