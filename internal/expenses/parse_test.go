package expenses

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBatchCSVDropsInvalidLine(t *testing.T) {
	rows, err := ParseBatch("Coffee,4.5\nInvalid line\nRent,1200", FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, []Row{
		{Description: "Coffee", Amount: 4.5},
		{Description: "Rent", Amount: 1200},
	}, rows)
}

func TestParseBatchCSV(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Row
	}{
		{"header skipped", "description,amount\nLunch,12", []Row{{"Lunch", 12}}},
		{"spaces", "  Lunch , 12.50 \n", []Row{{"Lunch", 12.5}}},
		{"quoted comma decimal", `Lunch,"12,50"`, []Row{{"Lunch", 12.5}}},
		{"comma in description", "Dinner, wine,30", []Row{{"Dinner, wine", 30}}},
		{"unquoted comma decimal dropped", "Coffee,4,50\nTea,3", []Row{{"Tea", 3}}},
		{"number in description", "Bus 42,3", []Row{{"Bus 42", 3}}},
		{"zero and negative dropped", "A,0\nB,-3\nC,2", []Row{{"C", 2}}},
		{"empty description dropped", ",5\nD,1", []Row{{"D", 1}}},
		{"blank lines", "\n\nE,1\n\n", []Row{{"E", 1}}},
		{"garbage amount", "F,abc", nil},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := ParseBatch(tt.in, FormatCSV)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rows)
		})
	}
}

func TestParseBatchJSON(t *testing.T) {
	rows, err := ParseBatch(`[
		{"description": "Coffee", "amount": 4.5},
		{"description": "Rent", "amount": "1200"},
		{"description": "", "amount": 3},
		{"description": "Refund", "amount": -2},
		{"description": "Nothing"}
	]`, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, []Row{{"Coffee", 4.5}, {"Rent", 1200}}, rows)
}

func TestParseBatchJSONTrailingWhitespace(t *testing.T) {
	rows, err := ParseBatch("[{\"description\":\"Coffee\",\"amount\":4.5}]\n\n", FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, []Row{{"Coffee", 4.5}}, rows)
}

func TestParseBatchJSONMalformed(t *testing.T) {
	for _, in := range []string{
		`{"description":"x"}`,
		`[{"description":`,
		`not json`,
		`[{"description":"Coffee","amount":4.5}] trailing garbage`,
		`[{"description":"Coffee","amount":4.5}][]`,
	} {
		_, err := ParseBatch(in, FormatJSON)
		assert.ErrorIs(t, err, ErrMalformedBatch, in)
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	_, err = ParseFormat("xml")
	assert.Error(t, err)
}
