package roster

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

func readXLSX(ctx context.Context, path string) ([]Row, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "roster: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("roster: workbook has no sheets")
	}

	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.New("roster: empty file")
	}

	cols, err := header(cellStrings(sheet.Rows[0]))
	if err != nil {
		return nil, err
	}

	var rows []Row
	for _, r := range sheet.Rows[1:] {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "roster: context cancelled")
		}
		if r == nil {
			continue
		}
		record := cellStrings(r)
		if isBlank(record) {
			continue
		}
		rows = append(rows, toRow(cols, record))
	}
	return rows, nil
}

func cellStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}
