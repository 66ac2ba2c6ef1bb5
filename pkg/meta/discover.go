package meta

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ammar0144/orm4go/pkg/db"
	"github.com/ammar0144/orm4go/pkg/inflect"
)

// Querier is the read side of the SQL execution collaborator
type Querier interface {
	Query(ctx context.Context, query string, args ...any) ([]db.Row, error)
}

// DiscoverOptions tunes schema discovery
type DiscoverOptions struct {
	// Tables restricts discovery to the named tables. Empty means every table.
	Tables []string
	// VersionColumn is the optimistic lock column looked for in every table.
	VersionColumn string
	// Cacheable marks every discovered table as cacheable.
	Cacheable bool
	// KeyStrategy applies to every discovered table.
	KeyStrategy KeyStrategy
}

// DefaultVersionColumn is the optimistic lock column discovery looks for
const DefaultVersionColumn = "record_version"

// Column is one discovered column
type Column struct {
	Table      string
	Name       string
	PrimaryKey bool
}

// Discover reads the schema through q and infers table specs, including the associations
// implied by column names. The result is sorted by table name and can be passed to
// Registry.RegisterAll.
func Discover(ctx context.Context, q Querier, dialect db.Dialect, opts DiscoverOptions) ([]TableSpec, error) {
	columns, err := readColumns(ctx, q, dialect)
	if err != nil {
		return nil, err
	}
	if len(opts.Tables) > 0 {
		keep := make(map[string]struct{}, len(opts.Tables))
		for _, t := range opts.Tables {
			keep[strings.ToLower(t)] = struct{}{}
		}
		filtered := columns[:0]
		for _, c := range columns {
			if _, ok := keep[c.Table]; ok {
				filtered = append(filtered, c)
			}
		}
		columns = filtered
	}
	return InferSpecs(columns, opts), nil
}

func readColumns(ctx context.Context, q Querier, dialect db.Dialect) ([]Column, error) {
	switch dialect {
	case db.DialectSQLite:
		return readSQLiteColumns(ctx, q)
	case db.DialectMySQL:
		rows, err := q.Query(ctx, `SELECT table_name AS table_name, column_name AS column_name, column_key AS column_key
FROM information_schema.columns WHERE table_schema = DATABASE() ORDER BY table_name, ordinal_position`)
		if err != nil {
			return nil, fmt.Errorf("failed to read mysql columns: %w", err)
		}
		out := make([]Column, 0, len(rows))
		for _, row := range rows {
			out = append(out, Column{
				Table:      strings.ToLower(fmt.Sprint(row["table_name"])),
				Name:       strings.ToLower(fmt.Sprint(row["column_name"])),
				PrimaryKey: fmt.Sprint(row["column_key"]) == "PRI",
			})
		}
		return out, nil
	case db.DialectPostgres:
		rows, err := q.Query(ctx, `SELECT c.table_name, c.column_name,
  EXISTS (SELECT 1 FROM information_schema.table_constraints tc
    JOIN information_schema.key_column_usage k ON k.constraint_name = tc.constraint_name AND k.table_schema = tc.table_schema
    WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = c.table_schema
      AND tc.table_name = c.table_name AND k.column_name = c.column_name) AS primary_key
FROM information_schema.columns c WHERE c.table_schema = current_schema()
ORDER BY c.table_name, c.ordinal_position`)
		if err != nil {
			return nil, fmt.Errorf("failed to read postgres columns: %w", err)
		}
		out := make([]Column, 0, len(rows))
		for _, row := range rows {
			pk, _ := row["primary_key"].(bool)
			out = append(out, Column{
				Table:      strings.ToLower(fmt.Sprint(row["table_name"])),
				Name:       strings.ToLower(fmt.Sprint(row["column_name"])),
				PrimaryKey: pk,
			})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported dialect for discovery: %s", dialect)
	}
}

func readSQLiteColumns(ctx context.Context, q Querier) ([]Column, error) {
	tables, err := q.Query(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sqlite tables: %w", err)
	}

	var out []Column
	for _, t := range tables {
		name := fmt.Sprint(t["name"])
		cols, err := q.Query(ctx, `SELECT name, pk FROM pragma_table_info(?) ORDER BY cid`, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read columns of %s: %w", name, err)
		}
		for _, c := range cols {
			out = append(out, Column{
				Table:      strings.ToLower(name),
				Name:       strings.ToLower(fmt.Sprint(c["name"])),
				PrimaryKey: fmt.Sprint(c["pk"]) != "0",
			})
		}
	}
	return out, nil
}

// InferSpecs turns discovered columns into table specs.
//
// A table with exactly two <singular>_id columns naming two other tables, and named after
// both of them, is a join table: it yields a many-to-many association on each side instead
// of belongs-to edges. Every other <singular>_id column naming a known table yields a
// belongs-to on its table and a one-to-many on the referenced table. parent_id together with
// parent_type marks a polymorphic child.
func InferSpecs(columns []Column, opts DiscoverOptions) []TableSpec {
	version := opts.VersionColumn
	if version == "" {
		version = DefaultVersionColumn
	}

	order := []string{}
	specs := make(map[string]*TableSpec)
	for _, c := range columns {
		s, ok := specs[c.Table]
		if !ok {
			s = &TableSpec{Name: c.Table, Cacheable: opts.Cacheable, KeyStrategy: opts.KeyStrategy}
			specs[c.Table] = s
			order = append(order, c.Table)
		}
		s.Attributes = append(s.Attributes, c.Name)
		if c.PrimaryKey && s.IDColumn == "" {
			s.IDColumn = c.Name
		}
		if c.Name == version {
			s.VersionColumn = version
		}
	}
	sort.Strings(order)

	for _, name := range order {
		s := specs[name]
		if s.IDColumn == "" {
			s.IDColumn = DefaultIDColumn
		}

		var refs []reference
		hasParentID, hasParentType := false, false
		for _, attr := range s.Attributes {
			switch attr {
			case DefaultPolymorphicIDColumn:
				hasParentID = true
			case DefaultPolymorphicTypeColumn:
				hasParentType = true
			}
			if attr == s.IDColumn || !strings.HasSuffix(attr, inflect.IDSuffix) {
				continue
			}
			target := inflect.Pluralize(strings.TrimSuffix(attr, inflect.IDSuffix))
			if _, ok := specs[target]; ok {
				refs = append(refs, reference{column: attr, table: target})
			}
		}

		if isJoinTable(name, refs) {
			a, b := refs[0], refs[1]
			specs[a.table].Associations = append(specs[a.table].Associations,
				ManyToMany(b.table, WithJoinTable(name), WithKeys(a.column, b.column)))
			specs[b.table].Associations = append(specs[b.table].Associations,
				ManyToMany(a.table, WithJoinTable(name), WithKeys(b.column, a.column)))
			continue
		}

		for _, ref := range refs {
			s.Associations = append(s.Associations, BelongsTo(ref.table, WithForeignKey(ref.column)))
			if ref.table != name {
				parent := specs[ref.table]
				parent.Associations = append(parent.Associations, HasMany(name, WithForeignKey(ref.column)))
			}
		}
		if hasParentID && hasParentType {
			if _, ok := specs[inflect.Pluralize("parent")]; !ok {
				s.Associations = append(s.Associations, BelongsToPolymorphic())
			}
		}
	}

	out := make([]TableSpec, 0, len(order))
	for _, name := range order {
		out = append(out, *specs[name])
	}
	return out
}

type reference struct {
	column string
	table  string
}

func isJoinTable(name string, refs []reference) bool {
	if len(refs) != 2 || refs[0].table == refs[1].table {
		return false
	}
	a, b := refs[0].table, refs[1].table
	return name == inflect.JoinTableName(a, b) || name == a+"_"+b || name == b+"_"+a
}
