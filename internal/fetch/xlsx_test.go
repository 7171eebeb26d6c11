package fetch

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestWorkbook(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "investors.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestParseFlowWorkbook(t *testing.T) {
	path := createTestWorkbook(t, map[string][][]string{
		"Weekly": {
			{"week_ending", "2026-08-28"},
			{"category", "buy_value", "sell_value"},
			{"Foreign", "1,200,000", "800,000"},
			{"Individual", "▲100", "200"},
			{"Proprietary", "５００", "100"},
		},
	})

	bd, err := ParseFlowWorkbook(path, WorkbookOptions{})
	require.NoError(t, err)

	assert.Equal(t, "2026-08-28", bd.WeekEnding)
	require.Len(t, bd.Rows, 3)
	assert.Equal(t, "Foreign", bd.Rows[0].Category)
	assert.Equal(t, int64(400_000), bd.Rows[0].NetValue)
	assert.Equal(t, int64(-100), bd.Rows[1].BuyValue)
	assert.Equal(t, int64(500), bd.Rows[2].BuyValue, "full-width digits fold to ASCII")
}

func TestParseFlowWorkbook_SheetByName(t *testing.T) {
	path := createTestWorkbook(t, map[string][][]string{
		"Notes": {{"irrelevant"}},
		"Data": {
			{"category", "buy_value", "sell_value"},
			{"Foreign", "10", "5"},
		},
	})

	bd, err := ParseFlowWorkbook(path, WorkbookOptions{SheetName: "Data"})
	require.NoError(t, err)
	require.Len(t, bd.Rows, 1)
	assert.Equal(t, int64(5), bd.Rows[0].NetValue)
}

func TestParseFlowWorkbook_MissingSheet(t *testing.T) {
	path := createTestWorkbook(t, map[string][][]string{
		"Data": {{"category", "buy_value", "sell_value"}, {"Foreign", "10", "5"}},
	})

	_, err := ParseFlowWorkbook(path, WorkbookOptions{SheetName: "Absent"})
	require.Error(t, err)
}

func TestParseFlowWorkbook_NoRows(t *testing.T) {
	path := createTestWorkbook(t, map[string][][]string{
		"Data": {{"category", "buy_value", "sell_value"}},
	})

	_, err := ParseFlowWorkbook(path, WorkbookOptions{})
	require.Error(t, err)
}
