package meta

import (
	"sort"
	"strings"

	"github.com/ammar0144/orm4go/pkg/inflect"
)

// KeyStrategy selects how primary keys of new rows are produced
type KeyStrategy string

const (
	// KeyAuto lets the database generate the key
	KeyAuto KeyStrategy = "auto"
	// KeyUUID assigns a random UUID before insert
	KeyUUID KeyStrategy = "uuid"
	// KeyManual requires the caller to assign the key
	KeyManual KeyStrategy = "manual"
)

// Timestamp columns managed on save when a table has them
const (
	CreatedAtColumn = "created_at"
	UpdatedAtColumn = "updated_at"
)

// DefaultIDColumn is used when a spec does not name its primary key
const DefaultIDColumn = "id"

// TableSpec describes a table to register. Names are case-insensitive.
type TableSpec struct {
	Name          string        `json:"name" yaml:"name"`
	IDColumn      string        `json:"id_column,omitempty" yaml:"id_column,omitempty"`
	Attributes    []string      `json:"attributes" yaml:"attributes"`
	VersionColumn string        `json:"version_column,omitempty" yaml:"version_column,omitempty"`
	TypeName      string        `json:"type_name,omitempty" yaml:"type_name,omitempty"`
	Cacheable     bool          `json:"cacheable" yaml:"cacheable"`
	KeyStrategy   KeyStrategy   `json:"key_strategy,omitempty" yaml:"key_strategy,omitempty"`
	Associations  []Association `json:"-" yaml:"-"`
}

// Table is the immutable metadata of a registered table
type Table struct {
	name          string
	idColumn      string
	versionColumn string
	typeName      string
	cacheable     bool
	keyStrategy   KeyStrategy
	attrs         map[string]struct{}
	attrList      []string
	associations  []Association
}

func newTable(spec TableSpec) (*Table, error) {
	name := strings.ToLower(strings.TrimSpace(spec.Name))
	if name == "" {
		return nil, &ConfigError{Table: "<unnamed>", Message: "table name is required"}
	}

	t := &Table{
		name:          name,
		idColumn:      strings.ToLower(spec.IDColumn),
		versionColumn: strings.ToLower(spec.VersionColumn),
		typeName:      spec.TypeName,
		cacheable:     spec.Cacheable,
		keyStrategy:   spec.KeyStrategy,
		attrs:         make(map[string]struct{}, len(spec.Attributes)+1),
	}
	if t.idColumn == "" {
		t.idColumn = DefaultIDColumn
	}
	if t.typeName == "" {
		t.typeName = inflect.TypeName(name)
	}
	if t.keyStrategy == "" {
		t.keyStrategy = KeyAuto
	}
	switch t.keyStrategy {
	case KeyAuto, KeyUUID, KeyManual:
	default:
		return nil, &ConfigError{Table: name, Field: "key_strategy", Message: "must be auto, uuid or manual"}
	}

	if len(spec.Attributes) == 0 {
		return nil, &ConfigError{Table: name, Field: "attributes", Message: "at least one attribute is required"}
	}
	for _, attr := range spec.Attributes {
		t.attrs[strings.ToLower(attr)] = struct{}{}
	}
	t.attrs[t.idColumn] = struct{}{}
	if t.versionColumn != "" && !t.HasAttribute(t.versionColumn) {
		return nil, &ConfigError{Table: name, Field: t.versionColumn, Message: "version column is not an attribute"}
	}

	t.attrList = make([]string, 0, len(t.attrs))
	for attr := range t.attrs {
		t.attrList = append(t.attrList, attr)
	}
	sort.Strings(t.attrList)

	for _, decl := range spec.Associations {
		a, err := complete(t, decl)
		if err != nil {
			return nil, err
		}
		t.associations = append(t.associations, a)
	}
	return t, nil
}

// Name returns the lowercase table name.
func (t *Table) Name() string { return t.name }

// IDColumn returns the primary key column.
func (t *Table) IDColumn() string { return t.idColumn }

// VersionColumn returns the optimistic lock column, empty when the table is not versioned.
func (t *Table) VersionColumn() string { return t.versionColumn }

// Versioned reports whether updates use optimistic locking.
func (t *Table) Versioned() bool { return t.versionColumn != "" }

// TypeName returns the discriminator value identifying the table in polymorphic rows.
func (t *Table) TypeName() string { return t.typeName }

// Cacheable reports whether query results for the table go through the query cache.
func (t *Table) Cacheable() bool { return t.cacheable }

// KeyStrategy returns how primary keys are assigned on insert.
func (t *Table) KeyStrategy() KeyStrategy { return t.keyStrategy }

// Attributes returns the sorted attribute names.
func (t *Table) Attributes() []string {
	out := make([]string, len(t.attrList))
	copy(out, t.attrList)
	return out
}

// HasAttribute reports whether name is a column of the table, ignoring case.
func (t *Table) HasAttribute(name string) bool {
	_, ok := t.attrs[strings.ToLower(name)]
	return ok
}

// Timestamps reports which of created_at and updated_at the table has.
func (t *Table) Timestamps() (created, updated bool) {
	return t.HasAttribute(CreatedAtColumn), t.HasAttribute(UpdatedAtColumn)
}

// Associations returns the declared associations in declaration order.
func (t *Table) Associations() []Association {
	out := make([]Association, len(t.associations))
	copy(out, t.associations)
	return out
}

// CheckAssignable fails for the primary key and for unknown attributes.
func (t *Table) CheckAssignable(attr string) error {
	attr = strings.ToLower(attr)
	if attr == t.idColumn {
		return &IllegalAttributeError{Table: t.name, Attribute: attr, Reason: "the primary key cannot be set directly"}
	}
	if !t.HasAttribute(attr) {
		return &IllegalAttributeError{Table: t.name, Attribute: attr, Reason: "no such attribute"}
	}
	return nil
}
