package record

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// timeLayouts are tried in order when a time attribute arrives as text, as SQLite and
// MySQL without parseTime return it.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses s with the layouts databases commonly use for DATE and DATETIME text.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}

var timeType = reflect.TypeOf(time.Time{})

func stringToTimeHook(from, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}
	switch from.Kind() {
	case reflect.String:
		return ParseTime(reflect.ValueOf(data).String())
	case reflect.Int64:
		return time.Unix(reflect.ValueOf(data).Int(), 0).UTC(), nil
	}
	return data, nil
}

func newDecoder(out any, tag string) (*mapstructure.Decoder, error) {
	return mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       stringToTimeHook,
		WeaklyTypedInput: true,
		TagName:          tag,
		Result:           out,
	})
}

// convert weakly converts a single driver value into out, a pointer
func convert(v any, out any) error {
	dec, err := newDecoder(out, "")
	if err != nil {
		return err
	}
	return dec.Decode(v)
}

// GetString returns attr as text, empty when unset.
func (r *Record) GetString(attr string) string {
	v := r.Get(attr)
	if v == nil {
		return ""
	}
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339)
	}
	var s string
	if err := convert(v, &s); err != nil {
		return fmt.Sprint(v)
	}
	return s
}

// GetInt64 returns attr as an integer, 0 when unset or not numeric.
func (r *Record) GetInt64(attr string) int64 {
	var n int64
	if v := r.Get(attr); v != nil {
		_ = convert(v, &n)
	}
	return n
}

// GetFloat64 returns attr as a float, 0 when unset or not numeric.
func (r *Record) GetFloat64(attr string) float64 {
	var f float64
	if v := r.Get(attr); v != nil {
		_ = convert(v, &f)
	}
	return f
}

// GetBool returns attr as a boolean. Numbers are true when non-zero.
func (r *Record) GetBool(attr string) bool {
	var b bool
	if v := r.Get(attr); v != nil {
		_ = convert(v, &b)
	}
	return b
}

// GetTime returns attr as a time, the zero time when unset or unparsable.
func (r *Record) GetTime(attr string) time.Time {
	switch v := r.Get(attr).(type) {
	case time.Time:
		return v
	case string:
		t, _ := ParseTime(v)
		return t
	case []byte:
		t, _ := ParseTime(string(v))
		return t
	}
	return time.Time{}
}

// Decode copies the attributes into out, a pointer to a struct whose fields carry db tags.
// Values are converted weakly, so integer columns fill string fields and text dates fill
// time.Time fields.
func (r *Record) Decode(out any) error {
	dec, err := newDecoder(out, "db")
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(r.attrs)); err != nil {
		return fmt.Errorf("failed to decode %s record: %w", r.table.Name(), err)
	}
	return nil
}
