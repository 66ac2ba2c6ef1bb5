package meta

import (
	"strings"
	"sync"

	"github.com/ammar0144/orm4go/pkg/inflect"
)

// Override steers resolution for a table pair. At most one field is normally set.
type Override struct {
	// JoinTable forces a many-to-many association through the named table.
	JoinTable string
	// Role selects among several declared associations to the same target.
	Role string
	// Association is used as is after its endpoints are checked.
	Association *Association
}

type pair struct {
	source, target string
}

// Resolver determines the association between two tables from declarations and naming
// conventions. Successful resolutions without an override are memoized, so repeated calls
// return identical values.
type Resolver struct {
	registry *Registry

	mu   sync.RWMutex
	memo map[pair]Association
}

// NewResolver creates a resolver over registry
func NewResolver(registry *Registry) *Resolver {
	return &Resolver{
		registry: registry,
		memo:     make(map[pair]Association),
	}
}

// Registry returns the registry the resolver reads from.
func (r *Resolver) Registry() *Registry {
	return r.registry
}

// Resolve returns the association from source to target.
//
// Declared associations of source are consulted first, then declarations on target toward
// source (inverted), then naming conventions: a singular(target)_id column on source, a
// singular(source)_id column on target, a registered join table, and finally parent_id with
// parent_type on target. Several declared matches without a role is an error.
func (r *Resolver) Resolve(source, target string, override *Override) (Association, error) {
	source, target = strings.ToLower(source), strings.ToLower(target)

	src, err := r.registry.Table(source)
	if err != nil {
		return Association{}, err
	}
	dst, err := r.registry.Table(target)
	if err != nil {
		return Association{}, err
	}

	if override != nil && (override.JoinTable != "" || override.Role != "" || override.Association != nil) {
		return r.resolveOverride(src, dst, override)
	}

	key := pair{source, target}
	r.mu.RLock()
	a, ok := r.memo[key]
	r.mu.RUnlock()
	if ok {
		return a, nil
	}

	a, err = r.resolve(src, dst)
	if err != nil {
		return Association{}, err
	}

	r.mu.Lock()
	if prev, ok := r.memo[key]; ok {
		a = prev
	} else {
		r.memo[key] = a
	}
	r.mu.Unlock()
	return a, nil
}

func (r *Resolver) resolve(src, dst *Table) (Association, error) {
	if a, found, err := pick(src.name, dst.name, declaredTo(src, dst.name)); found || err != nil {
		return a, err
	}

	var inverted []Association
	for _, a := range declaredTo(dst, src.name) {
		if inv, ok := a.Inverse(); ok {
			if inv.Kind == KindBelongsToPolymorphic {
				continue
			}
			inverted = append(inverted, inv)
		}
	}
	if a, found, err := pick(src.name, dst.name, inverted); found || err != nil {
		return a, err
	}

	if a, ok := r.infer(src, dst); ok {
		return a, nil
	}
	return Association{}, &NotAssociatedError{Source: src.name, Target: dst.name}
}

// infer applies the naming conventions in order.
func (r *Resolver) infer(src, dst *Table) (Association, bool) {
	if fk := inflect.ForeignKey(dst.name); src.HasAttribute(fk) && fk != src.idColumn {
		return Association{Kind: KindBelongsTo, Source: src.name, Target: dst.name, ForeignKey: fk}, true
	}
	if fk := inflect.ForeignKey(src.name); dst.HasAttribute(fk) && fk != dst.idColumn {
		return Association{Kind: KindOneToMany, Source: src.name, Target: dst.name, ForeignKey: fk}, true
	}

	sourceKey, targetKey := inflect.ForeignKey(src.name), inflect.ForeignKey(dst.name)
	if sourceKey != targetKey {
		candidates := []string{
			inflect.JoinTableName(src.name, dst.name),
			src.name + "_" + dst.name,
			dst.name + "_" + src.name,
		}
		for _, name := range candidates {
			join, err := r.registry.Table(name)
			if err != nil {
				continue
			}
			if join.HasAttribute(sourceKey) && join.HasAttribute(targetKey) {
				return Association{
					Kind:      KindManyToMany,
					Source:    src.name,
					Target:    dst.name,
					JoinTable: join.name,
					SourceKey: sourceKey,
					TargetKey: targetKey,
				}, true
			}
		}
	}

	if dst.HasAttribute(DefaultPolymorphicIDColumn) && dst.HasAttribute(DefaultPolymorphicTypeColumn) {
		return Association{
			Kind:       KindPolymorphic,
			Source:     src.name,
			Target:     dst.name,
			ForeignKey: DefaultPolymorphicIDColumn,
			TypeColumn: DefaultPolymorphicTypeColumn,
			TypeValue:  src.typeName,
		}, true
	}
	return Association{}, false
}

func (r *Resolver) resolveOverride(src, dst *Table, o *Override) (Association, error) {
	switch {
	case o.Association != nil:
		a := *o.Association
		if a.Source != src.name || a.Target != dst.name {
			return Association{}, &ConfigError{Table: src.name, Message: "override association does not connect " + src.name + " to " + dst.name}
		}
		return a, nil

	case o.Role != "":
		for _, a := range declaredTo(src, dst.name) {
			if a.Role == o.Role {
				return a, nil
			}
		}
		for _, a := range declaredTo(dst, src.name) {
			if a.Role != o.Role {
				continue
			}
			if inv, ok := a.Inverse(); ok && inv.Kind != KindBelongsToPolymorphic {
				return inv, nil
			}
		}
		return Association{}, &NotAssociatedError{Source: src.name, Target: dst.name, Role: o.Role}

	default:
		joinName := strings.ToLower(o.JoinTable)
		for _, a := range declaredTo(src, dst.name) {
			if a.Kind == KindManyToMany && a.JoinTable == joinName {
				return a, nil
			}
		}
		join, err := r.registry.Table(joinName)
		if err != nil {
			return Association{}, err
		}
		sourceKey, targetKey := inflect.ForeignKey(src.name), inflect.ForeignKey(dst.name)
		if sourceKey == targetKey {
			return Association{}, &ConfigError{Table: join.name, Message: "join columns collide, declare the association with WithKeys"}
		}
		if !join.HasAttribute(sourceKey) || !join.HasAttribute(targetKey) {
			return Association{}, &ConfigError{Table: join.name, Message: "join table must have " + sourceKey + " and " + targetKey}
		}
		return Association{
			Kind:      KindManyToMany,
			Source:    src.name,
			Target:    dst.name,
			JoinTable: join.name,
			SourceKey: sourceKey,
			TargetKey: targetKey,
		}, nil
	}
}

// Children returns the associations of table whose rows depend on it: one-to-many,
// polymorphic and many-to-many. It sees the same edges Resolve does, declared on either side
// or inferred from naming conventions against every registered table. The join table of a
// many-to-many child is never reported as a one-to-many child itself.
func (r *Resolver) Children(table string) ([]Association, error) {
	t, err := r.registry.Table(table)
	if err != nil {
		return nil, err
	}

	candidates := append([]Association(nil), t.associations...)
	for _, other := range r.registry.Tables() {
		if other.name == t.name {
			continue
		}
		for _, a := range other.associations {
			if a.Target != t.name {
				continue
			}
			if inv, ok := a.Inverse(); ok {
				candidates = append(candidates, inv)
			}
		}
		// ambiguous or unrelated pairs are covered by the declarations above, if at all
		if a, err := r.Resolve(t.name, other.name, nil); err == nil {
			candidates = append(candidates, a)
		}
	}

	joins := make(map[string]struct{})
	for _, a := range candidates {
		if a.Kind == KindManyToMany {
			joins[a.JoinTable] = struct{}{}
		}
	}

	var out []Association
	seen := make(map[Association]struct{})
	for _, a := range candidates {
		switch a.Kind {
		case KindManyToMany:
		case KindOneToMany, KindPolymorphic:
			if _, ok := joins[a.Target]; ok {
				continue
			}
		default:
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}

func declaredTo(t *Table, target string) []Association {
	var out []Association
	for _, a := range t.associations {
		if a.Target == target {
			out = append(out, a)
		}
	}
	return out
}

func pick(source, target string, matches []Association) (Association, bool, error) {
	switch len(matches) {
	case 0:
		return Association{}, false, nil
	case 1:
		return matches[0], true, nil
	default:
		roles := make([]string, 0, len(matches))
		for _, a := range matches {
			role := a.Role
			if role == "" {
				role = a.ForeignKey
			}
			if role == "" {
				role = a.JoinTable
			}
			roles = append(roles, role)
		}
		return Association{}, true, &AmbiguousAssociationError{Source: source, Target: target, Roles: roles}
	}
}
