package sheets

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"autoposter/internal/models"
)

// NewService builds a Sheets client from service-account JSON.
func NewService(ctx context.Context, credentialsJSON []byte, opts ...option.ClientOption) (*gsheets.Service, error) {
	const op = "sheets.NewService"

	opts = append([]option.ClientOption{
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(gsheets.SpreadsheetsScope),
	}, opts...)
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return svc, nil
}

// GoogleQueue is one platform's queue inside a Google spreadsheet.
type GoogleQueue struct {
	values        *gsheets.SpreadsheetsValuesService
	spreadsheetID string
	rng           Range
	logger        zerolog.Logger
}

func NewGoogleQueue(svc *gsheets.Service, spreadsheetID string, rng Range, logger zerolog.Logger) *GoogleQueue {
	return &GoogleQueue{
		values:        svc.Spreadsheets.Values,
		spreadsheetID: spreadsheetID,
		rng:           rng,
		logger:        logger.With().Str("spreadsheet", spreadsheetID).Logger(),
	}
}

func (q *GoogleQueue) FirstEligible(ctx context.Context) (*models.Row, error) {
	const op = "sheets.GoogleQueue.FirstEligible"

	resp, err := q.values.Get(q.spreadsheetID, q.rng.String()).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrQuery, err)
	}
	if len(resp.Values) == 0 {
		q.logger.Debug().Msg("queue sheet is empty")
		return nil, nil
	}

	values := make([][]string, len(resp.Values))
	for i, cells := range resp.Values {
		values[i] = make([]string, len(cells))
		for j, cell := range cells {
			values[i][j] = fmt.Sprint(cell)
		}
	}
	row := firstEligible(values, q.rng.FirstRow)
	if row == nil {
		q.logger.Debug().Int("rows", len(values)).Msg("no eligible rows")
	}
	return row, nil
}

func (q *GoogleQueue) SetStatus(ctx context.Context, position int, status models.Status) bool {
	cell := q.rng.StatusCell(position)
	body := &gsheets.ValueRange{Values: [][]interface{}{{string(status)}}}

	resp, err := q.values.Update(q.spreadsheetID, cell, body).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		q.logger.Error().Err(err).Str("cell", cell).Str("status", string(status)).Msg("status update failed")
		return false
	}
	q.logger.Info().Str("cell", cell).Int64("updated_cells", resp.UpdatedCells).Msg("status updated")
	return true
}
