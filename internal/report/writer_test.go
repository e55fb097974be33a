package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/envmon/internal/model"
)

var classes = []string{"Good", "Moderate", "Poor", "Hazardous"}

func sampleRecords() []Record {
	report := model.ExplanationReport{
		{Feature: "PM2.5", Contribution: 0.9, Percent: 60},
		{Feature: "NO2", Contribution: -0.45, Percent: 30},
		{Feature: "CO", Contribution: 0.15, Percent: 10},
	}
	return []Record{
		{Line: 2, ID: "station-1", Result: &model.Result{
			ClassLabel:    2,
			Probabilities: []float64{0.1, 0.2, 0.6, 0.1},
			Explanation:   &report,
			Summary:       "Predicted Poor (60.0% probability).",
		}},
		{Line: 3, ID: "station-2", Err: eris.New("report: NO2 is not a number")},
	}
}

func TestFormatFeatures(t *testing.T) {
	t.Parallel()

	got := FormatFeatures(model.ExplanationReport{
		{Feature: "PM2.5", Contribution: 1, Percent: 41.2},
		{Feature: "NO2", Contribution: -0.5, Percent: 12.5},
	})
	assert.Equal(t, "PM2.5 +41.20%; NO2 -12.50%", got)
	assert.Empty(t, FormatFeatures(nil))
}

func TestWriter_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Writer{Classes: classes}.Write(&buf, FormatJSON, sampleRecords()))

	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 2)

	assert.Equal(t, "Poor", out[0]["class"])
	assert.EqualValues(t, 2, out[0]["prediction"])
	assert.InDelta(t, 0.6, out[0]["probability"], 1e-9)
	assert.Len(t, out[0]["top_features"], 3)
	assert.NotContains(t, out[0], "error")

	assert.Equal(t, "report: NO2 is not a number", out[1]["error"])
	assert.NotContains(t, out[1], "prediction")
}

func TestWriter_CSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Writer{Classes: classes, TopN: 2}.Write(&buf, FormatCSV, sampleRecords()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, tableHeader, rows[0])
	assert.Equal(t, []string{"2", "station-1", "2", "Poor", "0.6000", "PM2.5 +60.00%; NO2 -30.00%", "Predicted Poor (60.0% probability).", ""}, rows[1])
	assert.Equal(t, []string{"3", "station-2", "", "", "", "", "", "report: NO2 is not a number"}, rows[2])
}

func TestWriter_XLSX(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Writer{Classes: classes}.Write(&buf, FormatXLSX, sampleRecords()))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, "predictions", sheet.Name)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "class", sheet.Rows[0].Cells[3].String())
	assert.Equal(t, "Poor", sheet.Rows[1].Cells[3].String())

	prob, err := sheet.Rows[1].Cells[4].Float()
	require.NoError(t, err)
	assert.InDelta(t, 0.6, prob, 1e-9)
	assert.Equal(t, "PM2.5 +60.00%; NO2 -30.00%; CO +10.00%", sheet.Rows[1].Cells[5].String())
}

func TestWriter_UnknownFormat(t *testing.T) {
	t.Parallel()

	err := Writer{}.Write(&bytes.Buffer{}, Format("parquet"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}
