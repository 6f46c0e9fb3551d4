package balance

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

var sheetNameReplacer = strings.NewReplacer(
	":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "_", "]", "_",
)

// WriteXLSX writes the report as a workbook with one worksheet per variable.
// Counts are written as numbers and spreads as text.
func WriteXLSX(w io.Writer, title string, rep Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	used := make(map[string]bool, len(rep.Tables))
	for i, t := range rep.Tables {
		sheet := uniqueSheetName(used, sheetName(i, t.Variable))
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet, err)
		}

		if err := f.SetCellValue(sheet, "A1", fmt.Sprintf("%s: %s", title, t.Variable)); err != nil {
			return err
		}
		rows := t.Rows()
		for r, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, r+3)
			if err != nil {
				return err
			}
			values := make([]any, len(row))
			for c, v := range row {
				if n, err := strconv.Atoi(v); err == nil {
					values[c] = n
				} else {
					values[c] = v
				}
			}
			if err := f.SetSheetRow(sheet, cell, &values); err != nil {
				return fmt.Errorf("write row %d of %s: %w", r, sheet, err)
			}
		}
		if note := t.Note(); note != "" {
			cell, _ := excelize.CoordinatesToCellName(1, len(rows)+4)
			if err := f.SetCellValue(sheet, cell, note); err != nil {
				return err
			}
		}
	}
	f.SetActiveSheet(0)
	return f.Write(w)
}

func sheetName(i int, variable string) string {
	name := sheetNameReplacer.Replace(variable)
	if name == "" {
		name = fmt.Sprintf("Variable %d", i+1)
	}
	return truncateRunes(name, maxSheetName)
}

// uniqueSheetName suffixes name with " (n)" until it differs, ignoring case,
// from every name already in used. Excel rejects sheet names that differ
// only in case.
func uniqueSheetName(used map[string]bool, name string) string {
	candidate := name
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		candidate = truncateRunes(name, maxSheetName-utf8.RuneCountInString(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
