package sheets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"autoposter/internal/models"
)

// workbookLocks serializes writers per file; both platforms may share a workbook.
var workbookLocks sync.Map

// Workbook is a queue kept in a local .xlsx file, for running without Google.
type Workbook struct {
	path   string
	rng    Range
	logger zerolog.Logger
}

func NewWorkbook(path string, rng Range, logger zerolog.Logger) *Workbook {
	return &Workbook{
		path:   path,
		rng:    rng,
		logger: logger.With().Str("workbook", path).Logger(),
	}
}

func (w *Workbook) lock() func() {
	v, _ := workbookLocks.LoadOrStore(w.path, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (w *Workbook) sheetName(f *excelize.File) string {
	if w.rng.Sheet != "" {
		return w.rng.Sheet
	}
	return f.GetSheetName(0)
}

func (w *Workbook) FirstEligible(ctx context.Context) (*models.Row, error) {
	const op = "sheets.Workbook.FirstEligible"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrQuery, err)
	}
	unlock := w.lock()
	defer unlock()

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrQuery, err)
	}
	defer f.Close()

	rows, err := f.GetRows(w.sheetName(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrQuery, err)
	}
	if len(rows) < w.rng.FirstRow {
		return nil, nil
	}

	values := make([][]string, 0, len(rows)-w.rng.FirstRow+1)
	for _, cells := range rows[w.rng.FirstRow-1:] {
		values = append(values, w.window(cells))
	}
	return firstEligible(values, w.rng.FirstRow), nil
}

// window cuts the three queue columns out of a sheet row and drops trailing
// blanks, matching what the Sheets API returns.
func (w *Workbook) window(cells []string) []string {
	start := w.rng.FirstColumn - 1
	if start >= len(cells) {
		return nil
	}
	end := start + 3
	if end > len(cells) {
		end = len(cells)
	}
	out := append([]string(nil), cells[start:end]...)
	for len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" {
		out = out[:len(out)-1]
	}
	return out
}

func (w *Workbook) SetStatus(ctx context.Context, position int, status models.Status) bool {
	if ctx.Err() != nil {
		return false
	}
	unlock := w.lock()
	defer unlock()

	cell := w.rng.StatusCell(position)
	if i := strings.LastIndex(cell, "!"); i >= 0 {
		cell = cell[i+1:]
	}

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		w.logger.Error().Err(err).Msg("open workbook for status update")
		return false
	}
	defer f.Close()

	if err := f.SetCellValue(w.sheetName(f), cell, string(status)); err != nil {
		w.logger.Error().Err(err).Str("cell", cell).Msg("status update failed")
		return false
	}
	if err := f.Save(); err != nil {
		w.logger.Error().Err(err).Str("cell", cell).Msg("save workbook failed")
		return false
	}
	w.logger.Info().Str("cell", cell).Str("status", string(status)).Msg("status updated")
	return true
}
