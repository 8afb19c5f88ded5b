// Package sheets reads queue rows from a spreadsheet and writes their status.
//
// A queue occupies three columns of a sheet: asset name, caption and status.
// Rows are addressed by their 1-based sheet row number, which is the only key
// used for writes; a status write always targets the row number returned by
// the read, even if the sheet has changed since.
package sheets

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"autoposter/internal/models"
)

// ErrQuery wraps transport and authorization failures while reading a queue.
var ErrQuery = errors.New("queue query failed")

// Range is a parsed A1 range descriptor such as "X!A2:C".
type Range struct {
	Sheet       string
	FirstColumn int
	FirstRow    int
}

func ParseRange(s string) (Range, error) {
	const op = "sheets.ParseRange"

	s = strings.TrimSpace(s)
	var r Range
	if i := strings.LastIndex(s, "!"); i >= 0 {
		r.Sheet = strings.Trim(s[:i], "'")
		s = s[i+1:]
	}
	start := s
	if i := strings.Index(s, ":"); i >= 0 {
		start = s[:i]
	}

	letters := strings.TrimRightFunc(start, unicode.IsDigit)
	digits := start[len(letters):]
	if letters == "" {
		return Range{}, fmt.Errorf("%s: no start column in %q", op, s)
	}
	col, err := columnIndex(letters)
	if err != nil {
		return Range{}, fmt.Errorf("%s: %v", op, err)
	}
	r.FirstColumn = col
	r.FirstRow = 1
	if digits != "" {
		n, err := strconv.Atoi(digits)
		if err != nil || n < 1 {
			return Range{}, fmt.Errorf("%s: bad start row in %q", op, s)
		}
		r.FirstRow = n
	}
	return r, nil
}

// StatusCell returns the A1 address of the status cell for a sheet row.
func (r Range) StatusCell(position int) string {
	cell := columnName(r.FirstColumn+2) + strconv.Itoa(position)
	if r.Sheet == "" {
		return cell
	}
	return quoteSheet(r.Sheet) + "!" + cell
}

func (r Range) String() string {
	cols := columnName(r.FirstColumn) + strconv.Itoa(r.FirstRow) + ":" + columnName(r.FirstColumn+2)
	if r.Sheet == "" {
		return cols
	}
	return quoteSheet(r.Sheet) + "!" + cols
}

func quoteSheet(name string) string {
	if strings.ContainsAny(name, " '!") {
		return "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name
}

func columnIndex(letters string) (int, error) {
	n := 0
	for _, ch := range strings.ToUpper(letters) {
		if ch < 'A' || ch > 'Z' {
			return 0, fmt.Errorf("bad column %q", letters)
		}
		n = n*26 + int(ch-'A'+1)
	}
	return n, nil
}

func columnName(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

// firstEligible scans rows in order and returns the first with at least two
// cells whose status is pending or blank. firstRow is the sheet row of values[0].
func firstEligible(values [][]string, firstRow int) *models.Row {
	for i, cells := range values {
		if len(cells) < 2 {
			continue
		}
		var status models.Status
		if len(cells) > 2 {
			status = models.Status(cells[2])
		}
		if !status.Eligible() {
			continue
		}
		return &models.Row{
			Identifier: strings.TrimSpace(cells[0]),
			Text:       cells[1],
			Status:     status,
			Position:   firstRow + i,
		}
	}
	return nil
}
