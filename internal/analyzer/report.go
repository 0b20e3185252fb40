package analyzer

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"patternscope/internal/indicator"
	"patternscope/pkg/model"
)

// Report is a computed indicator table for one query
type Report struct {
	Symbol   string
	Range    string
	Interval string
	Columns  []model.Column
	Rows     []indicator.Row

	opts indicator.Options
}

// Records returns the rows as JSON objects keyed by column name
func (r *Report) Records() []Record {
	records := make([]Record, len(r.Rows))
	for i, row := range r.Rows {
		records[i] = Record{Row: row, opts: r.opts}
	}
	return records
}

// Headers lists the record keys in output order
func (r *Report) Headers() []string {
	headers := []string{"Date", "Open", "High", "Low", "Close", "Volume"}
	var probe indicator.Row
	for _, f := range probe.Fields(r.opts) {
		headers = append(headers, f.Name)
	}
	return headers
}

// Record is one indicator row. It encodes as an object whose keys keep the
// table column order; values that are not computed encode as null.
type Record struct {
	Row  indicator.Row
	opts indicator.Options
}

// dateFormat keeps daily bars short and intraday bars exact
func dateFormat(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.RFC3339)
}

// Date returns the formatted bar time
func (r Record) Date() string {
	return dateFormat(r.Row.Time)
}

// MarshalJSON encodes the record with ordered keys
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	write := func(key string, v any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}

	b := r.Row.Bar
	head := []struct {
		key string
		val any
	}{
		{"Date", r.Date()},
		{"Open", indicator.Of(b.Open)},
		{"High", indicator.Of(b.High)},
		{"Low", indicator.Of(b.Low)},
		{"Close", indicator.Of(b.Close)},
		{"Volume", b.Volume},
	}
	for _, h := range head {
		if err := write(h.key, h.val); err != nil {
			return nil, err
		}
	}
	for _, f := range r.Row.Fields(r.opts) {
		if err := write(f.Name, f.Value); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Cells formats the record for a text table. Values that are not computed
// print as "-".
func (r Record) Cells() []string {
	b := r.Row.Bar
	volume := "-"
	if b.Volume.Valid {
		volume = strconv.FormatInt(b.Volume.Int64, 10)
	}
	cells := []string{
		r.Date(),
		cell(indicator.Of(b.Open)),
		cell(indicator.Of(b.High)),
		cell(indicator.Of(b.Low)),
		cell(indicator.Of(b.Close)),
		volume,
	}
	for _, f := range r.Row.Fields(r.opts) {
		cells = append(cells, cell(f.Value))
	}
	return cells
}

func cell(v indicator.Value) string {
	if !v.Ok() {
		return "-"
	}
	return strconv.FormatFloat(v.X, 'f', 2, 64)
}
