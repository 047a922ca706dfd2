package recipients

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/enel-control/enel-cli/internal/collab"
	"github.com/enel-control/enel-cli/internal/collab/mocks"
)

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alertas_bot.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	for _, stmt := range []string{
		`CREATE TABLE responsaveis (codigo_casa TEXT, user_id INTEGER, nome TEXT, funcao TEXT)`,
		`CREATE TABLE administradores (user_id INTEGER, nome TEXT, data_adicao TEXT)`,
		`INSERT INTO responsaveis VALUES ('BR 21-0270', 111, 'Ana', 'Cooperadora')`,
		`INSERT INTO responsaveis VALUES ('BR 21-0270', 222, NULL, NULL)`,
		`INSERT INTO responsaveis VALUES ('adm', 333, 'Carlos', 'Tesoureiro')`,
		`INSERT INTO responsaveis VALUES ('BR 21-0999', NULL, 'Sem id', NULL)`,
		`INSERT INTO administradores VALUES (900, 'Admin', '2024-01-01')`,
		`INSERT INTO administradores VALUES (NULL, 'Ninguem', '2024-01-01')`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return path
}

func TestOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	d, err := Open(ctx, writeFixture(t))
	require.NoError(t, err)

	rs, err := d.RecipientsFor(ctx, "BR 21-0270")
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, "111", rs[0].ID)
	assert.Equal(t, "Ana", rs[0].Name)
	assert.Equal(t, "Nome não informado", rs[1].Name)
	assert.Equal(t, "Função não informada", rs[1].Role)

	rs, err = d.RecipientsFor(ctx, "ADM")
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "333", rs[0].ID)

	rs, err = d.RecipientsFor(ctx, "BR 21-0999")
	require.NoError(t, err)
	assert.Empty(t, rs)

	admins, err := d.Admins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "900", admins[0].ID)
}

func TestWithAdminIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	d, err := Open(ctx, writeFixture(t), WithAdminIDs([]string{" 1 ", "", "2"}))
	require.NoError(t, err)

	admins, err := d.Admins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.Equal(t, "1", admins[0].ID)
	assert.Equal(t, "2", admins[1].ID)

	d, err = Open(ctx, writeFixture(t), WithAdminIDs(nil))
	require.NoError(t, err)
	admins, _ = d.Admins(ctx)
	assert.Len(t, admins, 1)
}

func TestLoad_FromBlob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	data, err := os.ReadFile(writeFixture(t))
	require.NoError(t, err)

	blob := collab.NewMemBlobStore()
	require.NoError(t, blob.Write(ctx, "alertas_bot.db", data))

	d, err := Load(ctx, blob, "alertas_bot.db")
	require.NoError(t, err)
	rs, err := d.RecipientsFor(ctx, "br 21-0270")
	require.NoError(t, err)
	assert.Len(t, rs, 2)
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	d, err := Load(ctx, collab.NewMemBlobStore(), "alertas_bot.db", WithAdminIDs([]string{"7"}))
	require.NoError(t, err)

	rs, err := d.RecipientsFor(ctx, "BR 21-0270")
	require.NoError(t, err)
	assert.Empty(t, rs)

	admins, err := d.Admins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "7", admins[0].ID)
}

func TestLoad_BlobError(t *testing.T) {
	t.Parallel()

	blob := new(mocks.MockBlobStore)
	blob.On("Read", mock.Anything, "alertas_bot.db").Return(nil, errors.New("graph: 500"))

	_, err := Load(context.Background(), blob, "alertas_bot.db")
	assert.Error(t, err)
}

func TestOpen_MissingTables(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE other (x INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(context.Background(), path)
	assert.Error(t, err)
}
