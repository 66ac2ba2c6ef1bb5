// Package meta holds the table metadata registry and the association resolver.
//
// Tables are registered once, from static specs or from a discovery pass over the schema,
// and are immutable afterwards. Associations are a tagged variant (see Kind) so call sites
// switch over the kind instead of probing types.
package meta

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Registry maps table names to metadata. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table
	byType map[string]*Table
	logger *slog.Logger
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tables: make(map[string]*Table),
		byType: make(map[string]*Table),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register builds and stores the metadata for spec. Registering a name twice returns the
// first instance and ignores the new spec.
func (r *Registry) Register(spec TableSpec) (*Table, error) {
	name := strings.ToLower(strings.TrimSpace(spec.Name))

	r.mu.RLock()
	existing, ok := r.tables[name]
	r.mu.RUnlock()
	if ok {
		return existing, nil
	}

	t, err := newTable(spec)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tables[t.name]; ok {
		return existing, nil
	}
	r.tables[t.name] = t
	if _, taken := r.byType[t.typeName]; !taken {
		r.byType[t.typeName] = t
	}
	r.logger.Debug("table registered",
		"table", t.name,
		"id_column", t.idColumn,
		"attributes", len(t.attrList),
		"associations", len(t.associations))
	return t, nil
}

// RegisterAll registers every spec, stopping at the first error.
func (r *Registry) RegisterAll(specs []TableSpec) error {
	for _, spec := range specs {
		if _, err := r.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister is like Register but panics on error. Intended for package level setup.
func (r *Registry) MustRegister(spec TableSpec) *Table {
	t, err := r.Register(spec)
	if err != nil {
		panic(err)
	}
	return t
}

// Table returns the metadata for name.
func (r *Registry) Table(name string) (*Table, error) {
	r.mu.RLock()
	t, ok := r.tables[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, &MetadataNotFoundError{Table: strings.ToLower(name)}
	}
	return t, nil
}

// Registered reports whether name has metadata.
func (r *Registry) Registered(name string) bool {
	_, err := r.Table(name)
	return err == nil
}

// TableByType returns the table whose type name matches a polymorphic discriminator.
func (r *Registry) TableByType(typeName string) (*Table, error) {
	r.mu.RLock()
	t, ok := r.byType[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, &MetadataNotFoundError{Table: typeName}
	}
	return t, nil
}

// AttributeExists reports whether table has attribute, ignoring case on both.
func (r *Registry) AttributeExists(table, attr string) bool {
	t, err := r.Table(table)
	if err != nil {
		return false
	}
	return t.HasAttribute(attr)
}

// Tables returns every registered table sorted by name.
func (r *Registry) Tables() []*Table {
	r.mu.RLock()
	out := make([]*Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Dependents returns the tables one association hop away from table: declared targets and
// join tables, plus tables that declare an association toward it.
func (r *Registry) Dependents(table string) []string {
	table = strings.ToLower(table)
	seen := map[string]struct{}{table: {}}
	var out []string
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	for _, t := range r.Tables() {
		for _, a := range t.associations {
			switch {
			case t.name == table:
				add(a.Target)
				add(a.JoinTable)
			case a.Target == table:
				add(t.name)
				add(a.JoinTable)
			}
		}
	}
	sort.Strings(out)
	return out
}
