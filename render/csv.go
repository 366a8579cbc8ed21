package render

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EncodeCSV writes a header of column keys followed by one line per row. Fields are
// quoted only when they contain a comma, quote, line break or leading space.
func EncodeCSV(doc Document) ([]byte, error) {
	if len(doc.Rows) == 0 {
		return nil, ErrEmptyDataset
	}
	cols := doc.ResolvedColumns()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Key
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, row := range doc.Rows {
		record := make([]string, len(cols))
		for i, c := range cols {
			v, _ := row.Get(c.Key)
			s, err := RawValue(v)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c.Key, err)
			}
			record[i] = s
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RawValue is the machine readable form of a cell. Objects and arrays become JSON
// with commas swapped for semicolons.
func RawValue(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case json.Number:
		return t.String(), nil
	case decimal.Decimal:
		return t.String(), nil
	case *decimal.Decimal:
		if t == nil {
			return "", nil
		}
		return t.String(), nil
	case time.Time:
		return t.Format(time.RFC3339), nil
	case *time.Time:
		if t == nil {
			return "", nil
		}
		return t.Format(time.RFC3339), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return "", nil
		}
		return RawValue(rv.Elem().Interface())
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return strings.ReplaceAll(string(b), ",", ";"), nil
	}
	return fmt.Sprint(v), nil
}
