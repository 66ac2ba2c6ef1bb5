package record

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ammar0144/orm4go/pkg/inflect"
)

// ChildrenKey holds the eagerly loaded records in serialized output
const ChildrenKey = "children"

// SerializeOptions projects attributes and selects nested children
type SerializeOptions struct {
	// Only lists the attributes to include. Empty means all of them.
	Only []string
	// Except lists attributes to leave out.
	Except []string
	// Children lists the child tables to nest. Nil means every attached table, an empty
	// non-nil slice none.
	Children []string
	// Child applies to nested records. Nil means the same options minus Children.
	Child *SerializeOptions
	// Indent pretty prints the output.
	Indent string
}

func (o SerializeOptions) attributes(r *Record) []string {
	keys := r.Keys()
	if len(o.Only) > 0 {
		only := make([]string, len(o.Only))
		for i, a := range o.Only {
			only[i] = strings.ToLower(a)
		}
		keys = slices.DeleteFunc(keys, func(k string) bool { return !slices.Contains(only, k) })
	}
	for _, a := range o.Except {
		a = strings.ToLower(a)
		keys = slices.DeleteFunc(keys, func(k string) bool { return k == a })
	}
	return keys
}

func (o SerializeOptions) childTables(r *Record) []string {
	if o.Children == nil {
		return r.ChildTables()
	}
	var tables []string
	for _, t := range o.Children {
		t = strings.ToLower(t)
		if _, ok := r.children[t]; ok {
			tables = append(tables, t)
		}
	}
	return tables
}

func (o SerializeOptions) child() SerializeOptions {
	if o.Child != nil {
		return *o.Child
	}
	return SerializeOptions{Only: o.Only, Except: o.Except, Children: []string{}}
}

// ToJSON renders the record as a JSON object with attributes in lexicographic order, followed
// by a "children" object mapping each nested table to an array.
func (r *Record) ToJSON(opts SerializeOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.writeJSON(&buf, opts); err != nil {
		return nil, err
	}
	if opts.Indent == "" {
		return buf.Bytes(), nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", opts.Indent); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// ToJSONArray renders records as a JSON array.
func ToJSONArray(records []*Record, opts SerializeOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSONArray(&buf, records, opts); err != nil {
		return nil, err
	}
	if opts.Indent == "" {
		return buf.Bytes(), nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", opts.Indent); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func writeJSONArray(buf *bytes.Buffer, records []*Record, opts SerializeOptions) error {
	buf.WriteByte('[')
	for i, rec := range records {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := rec.writeJSON(buf, opts); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func (r *Record) writeJSON(buf *bytes.Buffer, opts SerializeOptions) error {
	buf.WriteByte('{')
	keys := opts.attributes(r)
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(k)
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.attrs[k])
		if err != nil {
			return fmt.Errorf("failed to encode %s.%s: %w", r.table.Name(), k, err)
		}
		buf.Write(val)
	}

	tables := opts.childTables(r)
	if len(tables) > 0 {
		if len(keys) > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`"` + ChildrenKey + `":{`)
		for i, t := range tables {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(t)
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeJSONArray(buf, r.children[t], opts.child()); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return nil
}

// ToXML renders the record as an element named after the singular table name, one child
// element per attribute and a <children> element grouping nested tables.
func (r *Record) ToXML(opts SerializeOptions) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", opts.Indent)
	if err := r.encodeXML(enc, opts); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Record) encodeXML(enc *xml.Encoder, opts SerializeOptions) error {
	root := xml.StartElement{Name: xml.Name{Local: inflect.Singularize(r.table.Name())}}
	if err := enc.EncodeToken(root); err != nil {
		return err
	}
	for _, k := range opts.attributes(r) {
		el := xml.StartElement{Name: xml.Name{Local: k}}
		v := r.attrs[k]
		if v == nil {
			el.Attr = []xml.Attr{{Name: xml.Name{Local: "nil"}, Value: "true"}}
		}
		if err := enc.EncodeElement(xmlText(v), el); err != nil {
			return fmt.Errorf("failed to encode %s.%s: %w", r.table.Name(), k, err)
		}
	}

	if tables := opts.childTables(r); len(tables) > 0 {
		children := xml.StartElement{Name: xml.Name{Local: ChildrenKey}}
		if err := enc.EncodeToken(children); err != nil {
			return err
		}
		for _, t := range tables {
			group := xml.StartElement{Name: xml.Name{Local: t}}
			if err := enc.EncodeToken(group); err != nil {
				return err
			}
			for _, child := range r.children[t] {
				if err := child.encodeXML(enc, opts.child()); err != nil {
					return err
				}
			}
			if err := enc.EncodeToken(group.End()); err != nil {
				return err
			}
		}
		if err := enc.EncodeToken(children.End()); err != nil {
			return err
		}
	}
	return enc.EncodeToken(root.End())
}

func xmlText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		return x.Format(time.RFC3339)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// ToInsert renders an INSERT of every attribute holding a value, columns in lexicographic
// order and values as inline literals. It is meant for fixtures and debugging, not execution
// of untrusted data.
func (r *Record) ToInsert() string {
	keys := r.Keys()
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = Literal(r.attrs[k])
	}
	return "INSERT INTO " + r.table.Name() + " (" + strings.Join(keys, ", ") + ") VALUES (" +
		strings.Join(values, ", ") + ")"
}

// Literal renders a value as an ANSI SQL literal.
func Literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quote(x)
	case []byte:
		return quote(string(x))
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return quote(x.Format("2006-01-02"))
		}
		return quote(x.Format("2006-01-02 15:04:05"))
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x)
	default:
		return quote(fmt.Sprint(x))
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
