// Package render turns tabular datasets into printable HTML, CSV, PDF and XLSX documents.
package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var ErrEmptyDataset = errors.New("dataset is empty")

const Placeholder = "-"

// Field is one cell of a Row. Value is nil, a string, bool, integer, float,
// decimal.Decimal, time.Time, json.Number, or (for CSV only) a map or slice.
type Field struct {
	Key   string
	Value any
}

// Row keeps its fields in insertion order.
type Row []Field

func (r Row) Get(key string) (any, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

func (r Row) Keys() []string {
	keys := make([]string, 0, len(r))
	for _, f := range r {
		keys = append(keys, f.Key)
	}
	return keys
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping key order. Numbers stay json.Number.
func (r *Row) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("row must be a JSON object")
	}
	row := Row{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("row key must be a string")
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("row field %q: %w", key, err)
		}
		row = append(row, Field{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = row
	return nil
}

// Rows is a dataset. In JSON it is either an array of objects or a single flat object.
type Rows []Row

func (rs *Rows) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte("null")) {
		*rs = nil
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var row Row
		if err := json.Unmarshal(trimmed, &row); err != nil {
			return err
		}
		*rs = Rows{row}
		return nil
	}
	var rows []Row
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return err
	}
	*rs = rows
	return nil
}

type Formatter func(v any) string

// Column describes one table column. Format names a built-in formatter for requests
// that arrive as JSON; Formatter wins when both are set.
type Column struct {
	Key       string    `json:"key"`
	Label     string    `json:"label"`
	Format    string    `json:"format,omitempty"`
	Formatter Formatter `json:"-"`
}

func (c Column) Display(v any) string {
	if c.Formatter != nil {
		return c.Formatter(v)
	}
	if f := FormatterFor(c.Format); f != nil {
		return f(v)
	}
	return FormatValue(v)
}

type SummaryItem struct {
	Label  string `json:"label"`
	Value  any    `json:"value"`
	Format string `json:"format,omitempty"`
}

func (s SummaryItem) Display() string {
	if f := FormatterFor(s.Format); f != nil {
		return f(s.Value)
	}
	return FormatValue(s.Value)
}

// Summary is label -> value in display order. In JSON it is an object or a list of items.
type Summary []SummaryItem

func (s *Summary) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var row Row
		if err := json.Unmarshal(trimmed, &row); err != nil {
			return err
		}
		items := make(Summary, 0, len(row))
		for _, f := range row {
			items = append(items, SummaryItem{Label: f.Key, Value: f.Value})
		}
		*s = items
		return nil
	}
	var items []SummaryItem
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return err
	}
	*s = items
	return nil
}

type Document struct {
	OrgName     string    `json:"org_name"`
	LogoURL     string    `json:"logo_url"`
	Title       string    `json:"title"`
	Subtitle    string    `json:"subtitle"`
	GeneratedAt time.Time `json:"generated_at"`
	Columns     []Column  `json:"columns"`
	Rows        Rows      `json:"rows"`
	Summary     Summary   `json:"summary"`
}

// ResolvedColumns returns the explicit columns, or columns derived from the first
// row's keys with humanized labels.
func (d Document) ResolvedColumns() []Column {
	if len(d.Columns) > 0 {
		cols := make([]Column, len(d.Columns))
		for i, c := range d.Columns {
			if c.Label == "" {
				c.Label = Humanize(c.Key)
			}
			cols[i] = c
		}
		return cols
	}
	if len(d.Rows) == 0 {
		return nil
	}
	cols := make([]Column, 0, len(d.Rows[0]))
	for _, key := range d.Rows[0].Keys() {
		cols = append(cols, Column{Key: key, Label: Humanize(key)})
	}
	return cols
}

// Cells formats every row against cols.
func (d Document) Cells(cols []Column) [][]string {
	cells := make([][]string, 0, len(d.Rows))
	for _, row := range d.Rows {
		line := make([]string, len(cols))
		for i, c := range cols {
			v, _ := row.Get(c.Key)
			line[i] = c.Display(v)
		}
		cells = append(cells, line)
	}
	return cells
}

// Humanize turns "monthly_income" into "Monthly Income".
func Humanize(key string) string {
	key = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(key)
	return cases.Title(language.English).String(strings.Join(strings.Fields(key), " "))
}

// FormatValue applies the default display policy.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return Placeholder
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	case *bool:
		if t == nil {
			return Placeholder
		}
		return FormatValue(*t)
	case time.Time:
		return utils.FormatDate(t)
	case *time.Time:
		if t == nil {
			return Placeholder
		}
		return utils.FormatDate(*t)
	case decimal.Decimal:
		return t.String()
	case *decimal.Decimal:
		if t == nil {
			return Placeholder
		}
		return t.String()
	case string:
		return t
	default:
		return fmt.Sprint(v)
	}
}

// FormatterFor resolves a named formatter, nil when the name is unknown or empty.
func FormatterFor(name string) Formatter {
	switch strings.ToLower(name) {
	case "currency":
		return utils.FormatCurrency
	case "number":
		return utils.FormatNumber
	case "date":
		return func(v any) string { return formatTimeWith(v, utils.FormatDate) }
	case "datetime":
		return func(v any) string { return formatTimeWith(v, utils.FormatDateTime) }
	case "percent":
		return func(v any) string {
			d, ok := asDecimal(v)
			if !ok {
				return Placeholder
			}
			return utils.FormatPercent(d)
		}
	case "boolean":
		return func(v any) string {
			switch t := v.(type) {
			case bool, *bool:
				return FormatValue(t)
			case string:
				return FormatValue(strings.EqualFold(t, "true"))
			}
			return FormatValue(v)
		}
	}
	return nil
}

func formatTimeWith(v any, f func(time.Time) string) string {
	switch t := v.(type) {
	case time.Time:
		return f(t)
	case *time.Time:
		if t == nil {
			return Placeholder
		}
		return f(*t)
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return f(parsed)
			}
		}
		return t
	case nil:
		return Placeholder
	}
	return fmt.Sprint(v)
}

func asDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case *decimal.Decimal:
		if t == nil {
			return decimal.Zero, false
		}
		return *t, true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(t)
		return d, err == nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case int32:
		return decimal.NewFromInt32(t), true
	}
	return decimal.Zero, false
}
