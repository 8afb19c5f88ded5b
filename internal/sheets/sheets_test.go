package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"autoposter/internal/models"
)

func TestParseRange(t *testing.T) {
	cases := []struct {
		in     string
		want   Range
		status string
	}{
		{"X!A2:C", Range{Sheet: "X", FirstColumn: 1, FirstRow: 2}, "X!C7"},
		{"'My Queue'!B3:D", Range{Sheet: "My Queue", FirstColumn: 2, FirstRow: 3}, "'My Queue'!D7"},
		{"A:C", Range{FirstColumn: 1, FirstRow: 1}, "C7"},
		{"Posts!Z10:AB", Range{Sheet: "Posts", FirstColumn: 26, FirstRow: 10}, "Posts!AB7"},
	}
	for _, tc := range cases {
		got, err := ParseRange(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.status, got.StatusCell(7), tc.in)
	}

	_, err := ParseRange("X!12:C")
	assert.Error(t, err)
}

func TestRangeString(t *testing.T) {
	r, err := ParseRange("X!A2:C")
	require.NoError(t, err)
	assert.Equal(t, "X!A2:C", r.String())
}

func TestFirstEligible(t *testing.T) {
	values := [][]string{
		{"a.jpg", "first", "enviado"},
		{"only-one-cell"},
		{"b.jpg", "second", "descartado"},
		{"c.jpg", "third"},
		{"d.jpg", "fourth", "pendiente"},
	}
	row := firstEligible(values, 2)
	require.NotNil(t, row)
	assert.Equal(t, "c.jpg", row.Identifier)
	assert.Equal(t, "third", row.Text)
	assert.Equal(t, 5, row.Position)

	assert.Nil(t, firstEligible(values[:3], 2))
	assert.Nil(t, firstEligible(nil, 2))
}

func newWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", "X"))
	require.NoError(t, f.SetSheetRow("X", "A1", &[]any{"Imagen", "Texto", "Estado"}))
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("X", cell, &r))
	}
	path := filepath.Join(t.TempDir(), "queue.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestWorkbookQueue(t *testing.T) {
	path := newWorkbook(t, [][]any{
		{"a.jpg", "first", "enviado"},
		{"cat.jpg", "hello", "pendiente"},
		{"dog.jpg", "woof"},
	})
	rng, err := ParseRange(models.DefaultRange)
	require.NoError(t, err)
	q := NewWorkbook(path, rng, zerolog.Nop())
	ctx := context.Background()

	row, err := q.FirstEligible(ctx)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, models.Row{Identifier: "cat.jpg", Text: "hello", Status: "pendiente", Position: 3}, *row)

	require.True(t, q.SetStatus(ctx, row.Position, models.StatusSent))

	row, err = q.FirstEligible(ctx)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "dog.jpg", row.Identifier)
	assert.Equal(t, 4, row.Position)

	require.True(t, q.SetStatus(ctx, row.Position, models.StatusDiscarded))
	row, err = q.FirstEligible(ctx)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestWorkbookMissingFile(t *testing.T) {
	rng, _ := ParseRange(models.DefaultRange)
	q := NewWorkbook(filepath.Join(t.TempDir(), "nope.xlsx"), rng, zerolog.Nop())

	_, err := q.FirstEligible(context.Background())
	assert.ErrorIs(t, err, ErrQuery)
	assert.False(t, q.SetStatus(context.Background(), 2, models.StatusSent))
}

type fakeSheetsAPI struct {
	mu      sync.Mutex
	fail    bool
	values  [][]string
	updates []string
	bodies  []string
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]any{"range": "X!A2:C3", "values": f.values})
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.updates = append(f.updates, r.URL.Path+"?"+r.URL.RawQuery)
		f.bodies = append(f.bodies, string(body))
		_ = json.NewEncoder(w).Encode(map[string]any{"updatedCells": 1})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newGoogleQueue(t *testing.T, api *fakeSheetsAPI) *GoogleQueue {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	svc, err := gsheets.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	rng, _ := ParseRange(models.DefaultRange)
	return NewGoogleQueue(svc, "sheet-1", rng, zerolog.Nop())
}

func TestGoogleQueue(t *testing.T) {
	api := &fakeSheetsAPI{values: [][]string{
		{"a.jpg", "first", "enviado"},
		{"cat.jpg", "hello", "Pendiente"},
	}}
	q := newGoogleQueue(t, api)
	ctx := context.Background()

	row, err := q.FirstEligible(ctx)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "cat.jpg", row.Identifier)
	assert.Equal(t, 3, row.Position)

	require.True(t, q.SetStatus(ctx, row.Position, models.StatusSent))
	require.Len(t, api.updates, 1)
	assert.Contains(t, api.updates[0], "sheet-1")
	assert.Contains(t, api.updates[0], "X!C3")
	assert.Contains(t, api.updates[0], "valueInputOption=RAW")
	assert.True(t, strings.Contains(api.bodies[0], `"enviado"`))
}

func TestGoogleQueueEmpty(t *testing.T) {
	q := newGoogleQueue(t, &fakeSheetsAPI{})

	row, err := q.FirstEligible(context.Background())
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestGoogleQueueFailures(t *testing.T) {
	q := newGoogleQueue(t, &fakeSheetsAPI{fail: true})

	_, err := q.FirstEligible(context.Background())
	assert.ErrorIs(t, err, ErrQuery)
	assert.False(t, q.SetStatus(context.Background(), 3, models.StatusSent))
}
