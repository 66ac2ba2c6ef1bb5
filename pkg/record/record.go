// Package record is the row mapper: a Record is one table row held as a lowercase attribute
// map, with a lifecycle state and the set of attributes changed since it was loaded.
//
// Records are not safe for concurrent mutation. Persistence lives in the repository package;
// the lifecycle transitions it performs are exposed here as MarkPersisted and Freeze.
package record

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ammar0144/orm4go/pkg/db"
	"github.com/ammar0144/orm4go/pkg/meta"
)

// ErrFrozen is returned by any mutation of a deleted record
var ErrFrozen = errors.New("record is frozen")

// IsFrozen checks if an error is ErrFrozen
func IsFrozen(err error) bool {
	return errors.Is(err, ErrFrozen)
}

// State is the lifecycle state of a record
type State int

const (
	// StateNew records have never been saved.
	StateNew State = iota
	// StatePersisted records mirror a database row.
	StatePersisted
	// StateFrozen records were deleted. The state is terminal.
	StateFrozen
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StatePersisted:
		return "persisted"
	case StateFrozen:
		return "frozen"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Record is a row of a registered table
type Record struct {
	table    *meta.Table
	attrs    db.Row
	dirty    map[string]struct{}
	state    State
	children map[string][]*Record
}

// New creates an unsaved record of table.
func New(table *meta.Table) *Record {
	return &Record{
		table: table,
		attrs: make(db.Row),
		dirty: make(map[string]struct{}),
		state: StateNew,
	}
}

// Load maps a result row to a persisted record. Column names are lowercased; none are dirty.
func Load(table *meta.Table, row db.Row) *Record {
	r := &Record{
		table: table,
		attrs: make(db.Row, len(row)),
		dirty: make(map[string]struct{}),
		state: StatePersisted,
	}
	for k, v := range row {
		r.attrs[strings.ToLower(k)] = v
	}
	return r
}

// LoadAll maps every row with Load.
func LoadAll(table *meta.Table, rows []db.Row) []*Record {
	out := make([]*Record, len(rows))
	for i, row := range rows {
		out[i] = Load(table, row)
	}
	return out
}

// Table returns the record's metadata.
func (r *Record) Table() *meta.Table { return r.table }

// TableName returns the record's table name.
func (r *Record) TableName() string { return r.table.Name() }

// State returns the lifecycle state.
func (r *Record) State() State { return r.state }

// IsNew reports whether the record has never been saved.
func (r *Record) IsNew() bool { return r.state == StateNew }

// IsFrozen reports whether the record was deleted.
func (r *Record) IsFrozen() bool { return r.state == StateFrozen }

// ID returns the primary key value, nil for a new record without a pre-assigned key.
func (r *Record) ID() any {
	return r.attrs[r.table.IDColumn()]
}

// SetID pre-assigns the primary key of a new record.
func (r *Record) SetID(id any) error {
	if r.state == StateFrozen {
		return r.frozen()
	}
	if r.state != StateNew {
		return &meta.IllegalAttributeError{
			Table:     r.table.Name(),
			Attribute: r.table.IDColumn(),
			Reason:    "the primary key of a persisted record cannot change",
		}
	}
	r.attrs[r.table.IDColumn()] = id
	return nil
}

// Get returns the value of attr, nil when unset.
func (r *Record) Get(attr string) any {
	return r.attrs[strings.ToLower(attr)]
}

// Has reports whether attr holds a value, including an explicit nil.
func (r *Record) Has(attr string) bool {
	_, ok := r.attrs[strings.ToLower(attr)]
	return ok
}

// Set assigns attr and marks it dirty. The primary key and unknown attributes are rejected
// here rather than at save time.
func (r *Record) Set(attr string, value any) error {
	if r.state == StateFrozen {
		return r.frozen()
	}
	if err := r.table.CheckAssignable(attr); err != nil {
		return err
	}
	attr = strings.ToLower(attr)
	r.attrs[attr] = value
	r.dirty[attr] = struct{}{}
	return nil
}

// SetAll assigns every attribute of values, stopping at the first rejected one.
func (r *Record) SetAll(values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := r.Set(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// Apply writes attr without assignability checks or dirty tracking. It mirrors values the
// database produced, such as generated keys, versions and timestamps.
func (r *Record) Apply(attr string, value any) {
	r.attrs[strings.ToLower(attr)] = value
}

// Attributes returns a copy of the attribute map.
func (r *Record) Attributes() db.Row {
	out := make(db.Row, len(r.attrs))
	for k, v := range r.attrs {
		out[k] = v
	}
	return out
}

// Keys returns the sorted names of the attributes holding a value.
func (r *Record) Keys() []string {
	keys := make([]string, 0, len(r.attrs))
	for k := range r.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Dirty returns the sorted attributes changed since load, creation or the last save.
func (r *Record) Dirty() []string {
	keys := make([]string, 0, len(r.dirty))
	for k := range r.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsDirty reports whether any attribute changed.
func (r *Record) IsDirty() bool { return len(r.dirty) > 0 }

// Version returns the optimistic lock value and whether the table is versioned and the value
// is set.
func (r *Record) Version() (int64, bool) {
	if !r.table.Versioned() {
		return 0, false
	}
	v, ok := r.attrs[r.table.VersionColumn()]
	if !ok || v == nil {
		return 0, false
	}
	var n int64
	if err := convert(v, &n); err != nil {
		return 0, false
	}
	return n, true
}

// MarkPersisted records a successful insert or update: id (when not nil) becomes the primary
// key and the dirty set is cleared.
func (r *Record) MarkPersisted(id any) {
	if id != nil {
		r.attrs[r.table.IDColumn()] = id
	}
	r.state = StatePersisted
	clear(r.dirty)
}

// Freeze records a successful delete.
func (r *Record) Freeze() {
	r.state = StateFrozen
}

// CheckMutable returns ErrFrozen for a deleted record.
func (r *Record) CheckMutable() error {
	if r.state == StateFrozen {
		return r.frozen()
	}
	return nil
}

func (r *Record) frozen() error {
	return fmt.Errorf("%w: %s %v", ErrFrozen, r.table.Name(), r.ID())
}

// SetChildren attaches eagerly loaded records of another table, used by serialization.
func (r *Record) SetChildren(table string, children []*Record) {
	if r.children == nil {
		r.children = make(map[string][]*Record)
	}
	r.children[strings.ToLower(table)] = children
}

// Children returns the eagerly loaded records of table.
func (r *Record) Children(table string) []*Record {
	return r.children[strings.ToLower(table)]
}

// ChildTables returns the sorted tables with eagerly loaded records.
func (r *Record) ChildTables() []string {
	tables := make([]string, 0, len(r.children))
	for t := range r.children {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

func (r *Record) String() string {
	return fmt.Sprintf("%s(%s=%v, %s)", r.table.TypeName(), r.table.IDColumn(), r.ID(), r.state)
}
