package expenses

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"budgetwise/internal/core"
)

// Format names the batch text encodings ParseBatch understands.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown batch format %q: must be csv or json", s)
	}
}

// Row is one expense read from batch input.
type Row struct {
	Description string
	Amount      float64
}

var ErrMalformedBatch = errors.New("malformed batch input")

// ParseBatch reads rows from CSV or JSON text and drops rows without a
// description or a positive amount. CSV lines are "description,amount"; a
// header line, lines that do not parse and lines with an unquoted comma
// decimal are skipped. JSON must be an array
// of {"description", "amount"} objects, where amount may be a number or a
// string; text that is not exactly one such array is ErrMalformedBatch.
func ParseBatch(raw string, format Format) ([]Row, error) {
	switch format {
	case FormatCSV:
		return parseCSV(raw), nil
	case FormatJSON:
		return parseJSON(raw)
	default:
		return nil, fmt.Errorf("unknown batch format %q", format)
	}
}

func parseCSV(raw string) []Row {
	cr := csv.NewReader(strings.NewReader(raw))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			continue
		}
		if err != nil {
			break
		}
		if len(rec) < 2 {
			continue
		}

		// The amount is the last field; anything before it is description,
		// so unquoted commas in descriptions survive.
		last := len(rec) - 1
		if commaDecimal(rec) {
			continue
		}
		desc := strings.TrimSpace(strings.Join(rec[:last], ","))
		if isHeader(desc, rec[last]) {
			continue
		}
		if row, ok := makeRow(desc, rec[last]); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

// commaDecimal reports an unquoted comma decimal such as "Coffee,4,50",
// which cannot be told apart from a description ending in a number.
func commaDecimal(rec []string) bool {
	if len(rec) < 3 {
		return false
	}
	return allDigits(rec[len(rec)-2]) && allDigits(rec[len(rec)-1])
}

func allDigits(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isHeader(desc, amount string) bool {
	return strings.EqualFold(desc, "description") && strings.EqualFold(strings.TrimSpace(amount), "amount")
}

type jsonRow struct {
	Description string          `json:"description"`
	Amount      json.RawMessage `json:"amount"`
}

func parseJSON(raw string) ([]Row, error) {
	var items []jsonRow
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after array", ErrMalformedBatch)
	}

	rows := make([]Row, 0, len(items))
	for _, it := range items {
		amount := string(bytes.Trim(bytes.TrimSpace(it.Amount), `"`))
		if row, ok := makeRow(strings.TrimSpace(it.Description), amount); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func makeRow(desc, amount string) (Row, bool) {
	if desc == "" {
		return Row{}, false
	}
	d, err := core.ParseAmount(amount)
	if err != nil {
		return Row{}, false
	}
	return Row{Description: desc, Amount: d.InexactFloat64()}, true
}
