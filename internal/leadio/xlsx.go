package leadio

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Sheet is one worksheet to write. Cells may be string, int, int64 or
// float64; anything else is written with its string form.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]any
}

// WriteXLSX writes sheets to a new workbook at path.
func WriteXLSX(path string, sheets []Sheet) error {
	f := xlsx.NewFile()
	for _, s := range sheets {
		sheet, err := f.AddSheet(s.Name)
		if err != nil {
			return eris.Wrapf(err, "xlsx: add sheet %s", s.Name)
		}
		if len(s.Header) > 0 {
			row := sheet.AddRow()
			for _, h := range s.Header {
				row.AddCell().SetString(h)
			}
		}
		for _, values := range s.Rows {
			row := sheet.AddRow()
			for _, v := range values {
				setCell(row.AddCell(), v)
			}
		}
	}
	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "xlsx: save")
	}
	return nil
}

func setCell(c *xlsx.Cell, v any) {
	switch t := v.(type) {
	case string:
		c.SetString(t)
	case int:
		c.SetInt(t)
	case int64:
		c.SetInt(int(t))
	case float64:
		c.SetFloat(t)
	case interface{ String() string }:
		c.SetString(t.String())
	case nil:
		c.SetString("")
	default:
		c.SetString(fmt.Sprint(t))
	}
}

// ReadXLSX reads one sheet by name and returns all rows as string slices.
func ReadXLSX(path, sheetName string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, ok := f.Sheet[sheetName]
	if !ok {
		return nil, eris.Errorf("xlsx: sheet %q not found", sheetName)
	}

	var rows [][]string
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
