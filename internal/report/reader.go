// Package report reads batches of sensor readings and writes scored
// results as JSON, CSV or XLSX.
package report

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/envmon/internal/model"
)

// Format is a batch file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("report: cannot infer format of %q", path)
	}
}

// idColumn optionally labels each reading, e.g. a station or sensor id.
const idColumn = "id"

// Reading is one parsed input row. Err is set when the row could not be
// turned into a feature vector; other rows are unaffected.
type Reading struct {
	// Line is the 1-based line (CSV) or row (XLSX) number, header included.
	Line   int
	ID     string
	Vector model.FeatureVector
	Err    error
}

// ReadFile reads readings from a CSV or XLSX file. The header row must name
// every feature; columns are matched case-insensitively and reordered into
// feature order. Unknown columns are ignored.
func ReadFile(path string, features []string) ([]Reading, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	switch format {
	case FormatCSV:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "report: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		rows, err = readCSV(f)
		if err != nil {
			return nil, err
		}
	case FormatXLSX:
		rows, err = readXLSX(path)
		if err != nil {
			return nil, err
		}
	default:
		return nil, eris.Errorf("report: %s input is not supported", format)
	}
	return parseRows(rows, features)
}

// ReadCSV reads readings from CSV.
func ReadCSV(r io.Reader, features []string) ([]Reading, error) {
	rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	return parseRows(rows, features)
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "report: read csv")
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "report: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("report: xlsx has no sheets")
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func parseRows(rows [][]string, features []string) ([]Reading, error) {
	if len(rows) == 0 {
		return nil, eris.New("report: input has no header row")
	}

	cols := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}

	index := make([]int, len(features))
	var missing []string
	for i, name := range features {
		col, ok := cols[strings.ToLower(name)]
		if !ok {
			missing = append(missing, name)
			continue
		}
		index[i] = col
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("report: header is missing feature columns: %s", strings.Join(missing, ", "))
	}
	idCol, hasID := cols[idColumn]

	var out []Reading
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rd := Reading{Line: n + 2}
		if hasID && idCol < len(row) {
			rd.ID = strings.TrimSpace(row[idCol])
		}
		rd.Vector, rd.Err = parseVector(row, index, features)
		out = append(out, rd)
	}
	return out, nil
}

func parseVector(row []string, index []int, features []string) (model.FeatureVector, error) {
	v := make(model.FeatureVector, len(index))
	for i, col := range index {
		if col >= len(row) {
			return nil, eris.Errorf("report: %s is missing", features[i])
		}
		raw := strings.TrimSpace(row[col])
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, eris.Errorf("report: %s is not a number: %q", features[i], raw)
		}
		v[i] = f
	}
	return v, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
