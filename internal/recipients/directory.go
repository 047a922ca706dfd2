// Package recipients resolves who receives alerts for a unit from the
// responsibles database kept next to the other shared files.
package recipients

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/enel-control/enel-cli/internal/collab"
	"github.com/enel-control/enel-cli/internal/model"
)

const (
	responsiblesQuery = `SELECT codigo_casa, user_id, nome, funcao FROM responsaveis WHERE user_id IS NOT NULL`
	adminsQuery       = `SELECT user_id, nome FROM administradores WHERE user_id IS NOT NULL`
)

// Directory is an in-memory RecipientDirectory loaded from the responsibles
// database. It is read-only after construction.
type Directory struct {
	byKey  map[string][]model.Recipient
	admins []model.Recipient
}

var _ collab.RecipientDirectory = (*Directory)(nil)

// Option configures a Directory.
type Option func(*Directory)

// WithAdminIDs replaces the admin list from the database with fixed IDs.
// Blank IDs are ignored; an empty list keeps the database admins.
func WithAdminIDs(ids []string) Option {
	return func(d *Directory) {
		var admins []model.Recipient
		for _, id := range ids {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			admins = append(admins, model.Recipient{ID: id, Name: "Administrador", Role: "admin"})
		}
		if len(admins) > 0 {
			d.admins = admins
		}
	}
}

// Load downloads the responsibles database from blob and reads it. A missing
// file yields an empty directory so the run continues without alerts.
func Load(ctx context.Context, blob collab.BlobStore, path string, opts ...Option) (*Directory, error) {
	data, err := blob.Read(ctx, path)
	if errors.Is(err, collab.ErrNotFound) {
		zap.L().Warn("recipients: database not found, alerts will have no recipients", zap.String("path", path))
		return build(nil, nil, opts), nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "recipients: download %s", path)
	}

	tmp, err := os.CreateTemp("", "recipients-*.db")
	if err != nil {
		return nil, eris.Wrap(err, "recipients: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "recipients: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return nil, eris.Wrap(err, "recipients: close temp file")
	}
	return Open(ctx, tmp.Name(), opts...)
}

// Open reads a local responsibles database.
func Open(ctx context.Context, dbPath string, opts ...Option) (*Directory, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, eris.Wrap(err, "recipients: open")
	}
	defer db.Close() //nolint:errcheck

	byKey, err := readResponsibles(ctx, db)
	if err != nil {
		return nil, err
	}
	admins, err := readAdmins(ctx, db)
	if err != nil {
		return nil, err
	}

	d := build(byKey, admins, opts)
	zap.L().Info("recipients: loaded",
		zap.Int("units", len(d.byKey)),
		zap.Int("admins", len(d.admins)),
	)
	return d, nil
}

func build(byKey map[string][]model.Recipient, admins []model.Recipient, opts []Option) *Directory {
	if byKey == nil {
		byKey = make(map[string][]model.Recipient)
	}
	d := &Directory{byKey: byKey, admins: admins}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func readResponsibles(ctx context.Context, db *sql.DB) (map[string][]model.Recipient, error) {
	rows, err := db.QueryContext(ctx, responsiblesQuery)
	if err != nil {
		return nil, eris.Wrap(err, "recipients: query responsaveis")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string][]model.Recipient)
	for rows.Next() {
		var code, id, name, role sql.NullString
		if err := rows.Scan(&code, &id, &name, &role); err != nil {
			return nil, eris.Wrap(err, "recipients: scan responsavel")
		}
		key := normalizeKey(code.String)
		if key == "" || id.String == "" {
			continue
		}
		out[key] = append(out[key], model.Recipient{
			ID:   id.String,
			Name: orDefault(name.String, "Nome não informado"),
			Role: orDefault(role.String, "Função não informada"),
		})
	}
	return out, eris.Wrap(rows.Err(), "recipients: iterate responsaveis")
}

func readAdmins(ctx context.Context, db *sql.DB) ([]model.Recipient, error) {
	rows, err := db.QueryContext(ctx, adminsQuery)
	if err != nil {
		return nil, eris.Wrap(err, "recipients: query administradores")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Recipient
	for rows.Next() {
		var id, name sql.NullString
		if err := rows.Scan(&id, &name); err != nil {
			return nil, eris.Wrap(err, "recipients: scan administrador")
		}
		if id.String == "" {
			continue
		}
		out = append(out, model.Recipient{ID: id.String, Name: orDefault(name.String, "Administrador"), Role: "admin"})
	}
	return out, eris.Wrap(rows.Err(), "recipients: iterate administradores")
}

// RecipientsFor implements collab.RecipientDirectory. Unknown keys yield an
// empty list.
func (d *Directory) RecipientsFor(_ context.Context, key string) ([]model.Recipient, error) {
	rs := d.byKey[normalizeKey(key)]
	out := make([]model.Recipient, len(rs))
	copy(out, rs)
	return out, nil
}

// Admins implements collab.RecipientDirectory.
func (d *Directory) Admins(context.Context) ([]model.Recipient, error) {
	out := make([]model.Recipient, len(d.admins))
	copy(out, d.admins)
	return out, nil
}

func normalizeKey(k string) string {
	return strings.ToUpper(strings.TrimSpace(k))
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
