package fetch

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/width"

	"github.com/sells-group/marketflow-cli/internal/model"
)

// WorkbookOptions configures the investor-type workbook parser.
type WorkbookOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // header rows above the category table
}

// ParseFlowWorkbook parses the weekly investor-type workbook into a
// breakdown. The expected layout is one category per row: category,
// buy_value, sell_value, with the week-ending date in a `week_ending`
// cell pair anywhere above the table.
func ParseFlowWorkbook(path string, opts WorkbookOptions) (*model.InvestorBreakdown, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}

	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, err
	}

	bd := &model.InvestorBreakdown{}
	for i, row := range sheet.Rows {
		cells := rowStrings(row)

		if bd.WeekEnding == "" && len(cells) >= 2 &&
			strings.EqualFold(strings.TrimSpace(cells[0]), "week_ending") {
			bd.WeekEnding = width.Fold.String(strings.TrimSpace(cells[1]))
			continue
		}
		if i < opts.SkipRows || len(cells) < 3 {
			continue
		}

		category := strings.TrimSpace(cells[0])
		if category == "" || strings.EqualFold(category, "category") {
			continue
		}

		buy, err := parseYen(cells[1])
		if err != nil {
			return nil, eris.Wrapf(err, "xlsx: row %d", i+1)
		}
		sell, err := parseYen(cells[2])
		if err != nil {
			return nil, eris.Wrapf(err, "xlsx: row %d", i+1)
		}

		bd.Rows = append(bd.Rows, model.InvestorTypeFlow{
			Category:  category,
			BuyValue:  buy,
			SellValue: sell,
			NetValue:  buy - sell,
		})
	}

	if len(bd.Rows) == 0 {
		return nil, eris.Errorf("xlsx: no investor-type rows in %s", path)
	}
	bd.SchemaVersion = model.InvestorsSchemaVersion
	return bd, nil
}

func pickSheet(f *xlsx.File, opts WorkbookOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}
