// Package mapping loads the relationship workbook that ties organizational
// units to installations and their due days.
package mapping

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/enel-control/enel-cli/internal/collab"
	"github.com/enel-control/enel-cli/internal/model"
	"github.com/enel-control/enel-cli/internal/sheet"
)

// Column aliases, matched without case or accents.
var (
	labelColumns        = []string{"Casa", "Casa de Oração", "Unidade"}
	installationColumns = []string{"Instalacao", "Numero_Instalacao", "Instalação ENEL", "UC"}
	dueDayColumns       = []string{"Vencimento", "Dia_Vencimento", "Dia Vencimento"}
)

// Parse reads units from workbook bytes. The first row is the header. Rows
// without an installation are skipped; a repeated installation keeps its first row.
func Parse(data []byte) ([]model.Unit, error) {
	rows, err := sheet.Read(data, sheet.Options{})
	if err != nil {
		return nil, eris.Wrap(err, "mapping: read workbook")
	}
	if len(rows) == 0 {
		return nil, eris.New("mapping: workbook is empty")
	}

	h := sheet.NewHeader(rows[0])
	labelCol, ok := h.Index(labelColumns...)
	if !ok {
		return nil, eris.Errorf("mapping: missing unit column (one of %v)", labelColumns)
	}
	instCol, ok := h.Index(installationColumns...)
	if !ok {
		return nil, eris.Errorf("mapping: missing installation column (one of %v)", installationColumns)
	}
	dueCol, _ := h.Index(dueDayColumns...)

	seen := make(map[string]bool)
	var units []model.Unit
	for i, row := range rows[1:] {
		inst := normalizeInstallation(sheet.Cell(row, instCol))
		if inst == "" {
			continue
		}
		if seen[inst] {
			zap.L().Warn("mapping: duplicate installation ignored",
				zap.String("installation", inst),
				zap.Int("row", i+2),
			)
			continue
		}
		seen[inst] = true
		units = append(units, model.Unit{
			Label:          sheet.Cell(row, labelCol),
			InstallationID: inst,
			DueDay:         parseDueDay(sheet.Cell(row, dueCol)),
		})
	}
	return units, nil
}

// Load reads and parses the workbook from the blob store.
func Load(ctx context.Context, blob collab.BlobStore, path string) ([]model.Unit, error) {
	data, err := blob.Read(ctx, path)
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: read %s", path)
	}
	units, err := Parse(data)
	if err != nil {
		return nil, err
	}
	zap.L().Info("mapping: loaded units", zap.String("path", path), zap.Int("units", len(units)))
	return units, nil
}

// normalizeInstallation drops spreadsheet artifacts such as "12345678.0".
func normalizeInstallation(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".0")
	return s
}

// parseDueDay returns 0 when the cell is empty or not a day number; the
// ledger substitutes its default.
func parseDueDay(s string) int {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".0")
	d, err := strconv.Atoi(s)
	if err != nil || d < 1 || d > 31 {
		return 0
	}
	return d
}
