package render

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleRows() Rows {
	return Rows{
		{{Key: "id", Value: 1}, {Key: "name", Value: "Acme"}, {Key: "amount", Value: 100}},
		{{Key: "id", Value: 2}, {Key: "name", Value: "Be,ta"}, {Key: "amount", Value: 200}},
	}
}

func TestEncodeCSV_QuotesOnlyWhenNeeded(t *testing.T) {
	out, err := EncodeCSV(Document{Rows: sampleRows()})
	require.NoError(t, err)
	assert.Equal(t, "id,name,amount\n1,Acme,100\n2,\"Be,ta\",200\n", string(out))
}

func TestEncodeCSV_RoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	doc := Document{Rows: Rows{
		{{Key: "name", Value: `Kwame "KB" Boateng`}, {Key: "note", Value: "line one\nline two"}, {Key: "paid", Value: true},
			{Key: "amount", Value: decimal.RequireFromString("1234.50")}, {Key: "at", Value: at}, {Key: "missing", Value: nil}},
		{{Key: "name", Value: " leading space"}, {Key: "note", Value: ""}, {Key: "paid", Value: false},
			{Key: "amount", Value: 0.25}, {Key: "at", Value: &at}, {Key: "missing", Value: nil}},
	}}
	out, err := EncodeCSV(doc)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"name", "note", "paid", "amount", "at", "missing"}, records[0])
	assert.Equal(t, []string{`Kwame "KB" Boateng`, "line one\nline two", "true", "1234.5", "2024-05-01T08:30:00Z", ""}, records[1])
	assert.Equal(t, []string{" leading space", "", "false", "0.25", "2024-05-01T08:30:00Z", ""}, records[2])
}

func TestEncodeCSV_ObjectCellsAvoidDelimiters(t *testing.T) {
	doc := Document{Rows: Rows{{
		{Key: "id", Value: 7},
		{Key: "tags", Value: []string{"a", "b"}},
		{Key: "meta", Value: map[string]int{"x": 1, "y": 2}},
	}}}
	out, err := EncodeCSV(doc)
	require.NoError(t, err)
	assert.Equal(t, "id,tags,meta\n7,\"[\"\"a\"\";\"\"b\"\"]\",\"{\"\"x\"\":1;\"\"y\"\":2}\"\n", string(out))
}

func TestEncodeCSV_HeaderFollowsExplicitColumns(t *testing.T) {
	doc := Document{
		Columns: []Column{{Key: "amount"}, {Key: "name"}},
		Rows:    sampleRows(),
	}
	out, err := EncodeCSV(doc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "amount,name\n100,Acme\n"))
}

func TestExports_RejectEmptyDataset(t *testing.T) {
	for _, format := range []Format{FormatCSV, FormatPDF, FormatXLSX} {
		_, err := Encode(Document{Title: "Empty"}, format)
		assert.ErrorIs(t, err, ErrEmptyDataset, format)
	}
}

func TestRenderHTML_EmptyDatasetIsWellFormed(t *testing.T) {
	out, err := RenderHTML(Document{Title: "Clients", Columns: []Column{{Key: "name"}, {Key: "status"}}})
	require.NoError(t, err)
	html := string(out)
	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>"))
	assert.Contains(t, html, "<th>Name</th><th>Status</th>")
	assert.Contains(t, html, `colspan="2">No records</td>`)
	assert.Contains(t, html, "window.print()")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(html), "</html>"))
	assert.Equal(t, strings.Count(html, "<tr>"), strings.Count(html, "</tr>"))

	out, err = RenderHTML(Document{})
	require.NoError(t, err)
	assert.Contains(t, string(out), "No records")
}

func TestRenderHTML_FormatsAndEscapes(t *testing.T) {
	doc := Document{
		OrgName:     "Sika Microfinance",
		Title:       "Loans",
		GeneratedAt: time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC),
		Columns: []Column{
			{Key: "client", Label: "Client"},
			{Key: "amount", Label: "Amount", Format: "currency"},
			{Key: "approved", Label: "Approved"},
			{Key: "due", Label: "Due"},
			{Key: "note", Label: "Note"},
		},
		Rows: Rows{{
			{Key: "client", Value: "<script>alert(1)</script>"},
			{Key: "amount", Value: decimal.NewFromInt(1500)},
			{Key: "approved", Value: true},
			{Key: "due", Value: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
			{Key: "note", Value: nil},
		}},
		Summary: Summary{{Label: "Total", Value: decimal.NewFromInt(1500), Format: "currency"}},
	}
	out, err := RenderArchiveHTML(doc)
	require.NoError(t, err)
	html := string(out)
	assert.NotContains(t, html, "<script>alert(1)</script>")
	assert.Contains(t, html, "&lt;script&gt;")
	assert.Contains(t, html, "GH₵ 1,500.00")
	assert.Contains(t, html, "<td>Yes</td>")
	assert.Contains(t, html, "<td>01 Apr 2024</td>")
	assert.Contains(t, html, "<td>-</td>")
	assert.Contains(t, html, "Generated 05 Mar 2024 14:00")
	assert.Contains(t, html, "<span>Total</span><strong>GH₵ 1,500.00</strong>")
	assert.NotContains(t, html, "window.print()")
}

func TestEncodePDF(t *testing.T) {
	rows := make(Rows, 0, 80)
	for i := 0; i < 80; i++ {
		rows = append(rows, Row{{Key: "id", Value: i}, {Key: "name", Value: strings.Repeat("Long client name ", 4)}, {Key: "amount", Value: decimal.NewFromInt(int64(i * 10))}})
	}
	out, err := EncodePDF(Document{Title: "Loans", OrgName: "Sika", Rows: rows, Summary: Summary{{Label: "Count", Value: 80}}})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.True(t, bytes.Contains(out, []byte("%%EOF")))
}

func TestEncodeXLSX(t *testing.T) {
	out, err := EncodeXLSX(Document{
		Title:   "Clients",
		Rows:    sampleRows(),
		Summary: Summary{{Label: "Total", Value: 300}},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Report")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Id", "Name", "Amount"}, {"1", "Acme", "100"}, {"2", "Be,ta", "200"}}, rows)
	total, err := f.GetCellValue("Summary", "B1")
	require.NoError(t, err)
	assert.Equal(t, "300", total)
}

func TestRows_UnmarshalKeepsKeyOrder(t *testing.T) {
	var doc Document
	body := `{"title":"T","rows":[{"zeta":1,"alpha":"x","mid":null}],"summary":{"Total":10,"Average":2.5}}`
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	require.Len(t, doc.Rows, 1)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, doc.Rows[0].Keys())
	assert.Equal(t, json.Number("1"), doc.Rows[0][0].Value)
	assert.Equal(t, "Total", doc.Summary[0].Label)
	assert.Equal(t, "Average", doc.Summary[1].Label)

	var single Rows
	require.NoError(t, json.Unmarshal([]byte(`{"b":1,"a":2}`), &single))
	require.Len(t, single, 1)
	assert.Equal(t, []string{"b", "a"}, single[0].Keys())

	encoded, err := json.Marshal(single[0])
	require.NoError(t, err)
	assert.Equal(t, `{"b":1,"a":2}`, string(encoded))
}

func TestFormatValuePolicy(t *testing.T) {
	var nilTime *time.Time
	assert.Equal(t, "-", FormatValue(nil))
	assert.Equal(t, "-", FormatValue(nilTime))
	assert.Equal(t, "No", FormatValue(false))
	assert.Equal(t, "12.5", FormatValue(decimal.RequireFromString("12.50")))
	assert.Equal(t, "42", FormatValue(42))
	assert.Equal(t, "Monthly Income", Humanize("monthly_income"))
	assert.Equal(t, "75.0%", FormatterFor("percent")(json.Number("75")))
	assert.Equal(t, "05 Mar 2024", FormatterFor("date")("2024-03-05"))
	assert.Nil(t, FormatterFor("unknown"))
}

type failingStore struct{}

func (failingStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	return errors.New("bucket offline")
}

func (failingStore) PublicURL(key string) string { return key }

type memoryStore struct {
	keys []string
	body []byte
}

func (m *memoryStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	m.keys = append(m.keys, key)
	m.body = data
	return nil
}

func (m *memoryStore) PublicURL(key string) string { return "https://files.example/" + key }

func TestExport_Surfaces(t *testing.T) {
	doc := Document{Title: "Loans Report", Rows: sampleRows()}

	rec := httptest.NewRecorder()
	location, err := Export(context.Background(), doc, FormatCSV, ResponseSurface{Writer: rec})
	require.NoError(t, err)
	assert.Empty(t, location)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="loans_report.csv"`, rec.Header().Get("Content-Disposition"))

	store := &memoryStore{}
	location, err = Export(context.Background(), doc, FormatPDF, StorageSurface{Store: store, Folder: "reports/loans"})
	require.NoError(t, err)
	require.Len(t, store.keys, 1)
	assert.True(t, strings.HasPrefix(store.keys[0], "reports/loans/"))
	assert.True(t, strings.HasSuffix(store.keys[0], ".pdf"))
	assert.Equal(t, "https://files.example/"+store.keys[0], location)

	_, err = Export(context.Background(), doc, FormatCSV, StorageSurface{Store: failingStore{}})
	assert.ErrorIs(t, err, ErrSurfaceUnavailable)
	_, err = Export(context.Background(), doc, FormatCSV, StorageSurface{})
	assert.ErrorIs(t, err, ErrSurfaceUnavailable)
	_, err = Export(context.Background(), doc, FormatCSV, nil)
	assert.ErrorIs(t, err, ErrSurfaceUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Export(ctx, doc, FormatCSV, ResponseSurface{Writer: httptest.NewRecorder()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatHTML, f)
	f, err = ParseFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)
	_, err = ParseFormat("docx")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
