package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/envmon/internal/explain"
	"github.com/sells-group/envmon/internal/model"
)

// Record is one scored reading. Exactly one of Result and Err is set.
type Record struct {
	Line   int
	ID     string
	Result *model.Result
	Err    error
}

// Writer renders records. Classes names the labels; TopN limits how many
// attribution entries the CSV and XLSX outputs list (0 lists all).
type Writer struct {
	Classes []string
	TopN    int
}

type jsonRecord struct {
	Line          int                      `json:"line"`
	ID            string                   `json:"id,omitempty"`
	Prediction    *int                     `json:"prediction,omitempty"`
	Class         string                   `json:"class,omitempty"`
	Probability   float64                  `json:"probability,omitempty"`
	Probabilities []float64                `json:"probabilities,omitempty"`
	TopFeatures   *model.ExplanationReport `json:"top_features,omitempty"`
	Summary       string                   `json:"summary,omitempty"`
	Error         string                   `json:"error,omitempty"`
}

var tableHeader = []string{"line", "id", "prediction", "class", "probability", "top_features", "summary", "error"}

// Write renders records to w in format.
func (wr Writer) Write(w io.Writer, format Format, records []Record) error {
	switch format {
	case FormatJSON:
		return wr.writeJSON(w, records)
	case FormatCSV:
		return wr.writeCSV(w, records)
	case FormatXLSX:
		return wr.writeXLSX(w, records)
	default:
		return eris.Errorf("report: unsupported output format %q", format)
	}
}

func (wr Writer) writeJSON(w io.Writer, records []Record) error {
	out := make([]jsonRecord, len(records))
	for i, rec := range records {
		jr := jsonRecord{Line: rec.Line, ID: rec.ID}
		if rec.Err != nil {
			jr.Error = rec.Err.Error()
		} else if rec.Result != nil {
			label := rec.Result.ClassLabel
			jr.Prediction = &label
			jr.Class = explain.ClassName(wr.Classes, label)
			jr.Probability = rec.Result.MaxProbability()
			jr.Probabilities = rec.Result.Probabilities
			jr.TopFeatures = rec.Result.Explanation
			jr.Summary = rec.Result.Summary
		}
		out[i] = jr
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(out), "report: encode json")
}

func (wr Writer) writeCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tableHeader); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}
	for _, rec := range records {
		if err := cw.Write(wr.row(rec)); err != nil {
			return eris.Wrapf(err, "report: write csv line %d", rec.Line)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush csv")
}

func (wr Writer) writeXLSX(w io.Writer, records []Record) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("predictions")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range tableHeader {
		header.AddCell().SetString(h)
	}
	for _, rec := range records {
		row := sheet.AddRow()
		for i, v := range wr.row(rec) {
			cell := row.AddCell()
			// Keep numeric columns numeric so spreadsheets can sort them.
			if (i == 0 || i == 2 || i == 4) && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					cell.SetFloat(f)
					continue
				}
			}
			cell.SetString(v)
		}
	}
	return eris.Wrap(f.Write(w), "report: write xlsx")
}

// row renders a record as the CSV/XLSX columns.
func (wr Writer) row(rec Record) []string {
	cols := []string{strconv.Itoa(rec.Line), rec.ID, "", "", "", "", "", ""}
	if rec.Err != nil {
		cols[7] = rec.Err.Error()
		return cols
	}
	if rec.Result == nil {
		return cols
	}
	res := rec.Result
	cols[2] = strconv.Itoa(res.ClassLabel)
	cols[3] = explain.ClassName(wr.Classes, res.ClassLabel)
	cols[4] = strconv.FormatFloat(res.MaxProbability(), 'f', 4, 64)
	if res.Explanation != nil {
		cols[5] = FormatFeatures(res.Explanation.Top(wr.TopN))
	}
	cols[6] = res.Summary
	return cols
}

// FormatFeatures renders entries as "PM2.5 +41.20%; NO2 -12.50%", signing
// each percent with its contribution's direction.
func FormatFeatures(entries model.ExplanationReport) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		sign := "+"
		if e.Contribution < 0 {
			sign = "-"
		}
		parts[i] = fmt.Sprintf("%s %s%.2f%%", e.Feature, sign, e.Percent)
	}
	return strings.Join(parts, "; ")
}
