package cache

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
)

const keySeparator = ":"

// NormalizeSQL collapses runs of whitespace to one space and trims the ends. Quoted literals
// are kept verbatim.
func NormalizeSQL(query string) string {
	var b strings.Builder
	b.Grow(len(query))

	var quote rune
	space := false
	for _, r := range strings.TrimSpace(query) {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case unicode.IsSpace(r):
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Signature hashes normalized SQL together with the ordered parameters. Parameter types take
// part in the hash, so 1 and "1" produce different signatures. Pointers are hashed by the
// value they point to and times by their UTC instant.
func Signature(query string, params []any) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(NormalizeSQL(query))
	for _, p := range params {
		_, _ = d.WriteString("\x00")
		writeParam(d, p)
	}
	return d.Sum64()
}

func writeParam(d *xxhash.Digest, p any) {
	v := indirect(p)
	_, _ = d.WriteString(fmt.Sprintf("%T=", v))
	switch t := v.(type) {
	case nil:
	case time.Time:
		_, _ = d.WriteString(t.UTC().Format(time.RFC3339Nano))
	case []byte:
		_, _ = d.Write(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			_, _ = fmt.Fprintf(d, "%v", t)
			return
		}
		_, _ = d.Write(data)
	}
}

// indirect follows pointers to the value database/sql would send. A nil pointer is nil.
func indirect(p any) any {
	rv := reflect.ValueOf(p)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

// entryKey scopes a signature to the epoch and group generation it was computed in.
func entryKey(epoch, generation, sig uint64) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(epoch, 36))
	b.WriteByte('.')
	b.WriteString(strconv.FormatUint(generation, 36))
	b.WriteString(keySeparator)
	b.WriteString(strconv.FormatUint(sig, 16))
	return b.String()
}
