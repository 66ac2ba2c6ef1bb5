package meta

import (
	"fmt"
	"strings"

	"github.com/ammar0144/orm4go/pkg/inflect"
)

// Kind identifies the variant of an Association
type Kind int

const (
	// KindBelongsTo means the source row holds a foreign key to the target
	KindBelongsTo Kind = iota + 1
	// KindOneToMany means target rows hold a foreign key to the source
	KindOneToMany
	// KindManyToMany means rows of both tables are linked through a join table
	KindManyToMany
	// KindPolymorphic means target rows reference the source by id and type discriminator
	KindPolymorphic
	// KindBelongsToPolymorphic is the child side of a polymorphic association
	KindBelongsToPolymorphic
)

// Default polymorphic columns
const (
	DefaultPolymorphicIDColumn   = "parent_id"
	DefaultPolymorphicTypeColumn = "parent_type"
)

func (k Kind) String() string {
	switch k {
	case KindBelongsTo:
		return "belongs_to"
	case KindOneToMany:
		return "one_to_many"
	case KindManyToMany:
		return "many_to_many"
	case KindPolymorphic:
		return "polymorphic"
	case KindBelongsToPolymorphic:
		return "belongs_to_polymorphic"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Association is a resolved relationship between two tables. Only the fields relevant to Kind
// are set; the value is comparable, so resolved associations can be checked with ==.
type Association struct {
	Kind   Kind
	Source string
	// Target is empty for KindBelongsToPolymorphic, the parent table comes from the
	// discriminator column at runtime.
	Target string
	Role   string

	// ForeignKey is the referencing column: on the source for BelongsTo, on the target for
	// OneToMany and Polymorphic.
	ForeignKey string

	JoinTable string
	// SourceKey and TargetKey are the join table columns referencing source and target.
	SourceKey string
	TargetKey string

	TypeColumn string
	// TypeValue is the discriminator written for rows owned by Source.
	TypeValue string
}

// Tables returns every table touched by a structural change across the association.
func (a Association) Tables() []string {
	tables := []string{a.Source}
	if a.Target != "" && a.Target != a.Source {
		tables = append(tables, a.Target)
	}
	if a.JoinTable != "" {
		tables = append(tables, a.JoinTable)
	}
	return tables
}

// Inverse returns the same relationship seen from the target. BelongsToPolymorphic has no
// static inverse.
func (a Association) Inverse() (Association, bool) {
	inv := Association{
		Source: a.Target,
		Target: a.Source,
		Role:   a.Role,
	}
	switch a.Kind {
	case KindBelongsTo:
		inv.Kind = KindOneToMany
		inv.ForeignKey = a.ForeignKey
	case KindOneToMany:
		inv.Kind = KindBelongsTo
		inv.ForeignKey = a.ForeignKey
	case KindManyToMany:
		inv.Kind = KindManyToMany
		inv.JoinTable = a.JoinTable
		inv.SourceKey = a.TargetKey
		inv.TargetKey = a.SourceKey
	case KindPolymorphic:
		inv.Kind = KindBelongsToPolymorphic
		inv.Target = ""
		inv.ForeignKey = a.ForeignKey
		inv.TypeColumn = a.TypeColumn
	default:
		return Association{}, false
	}
	return inv, true
}

func (a Association) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s -> %s", a.Kind, a.Source, a.Target)
	switch a.Kind {
	case KindBelongsTo, KindOneToMany:
		fmt.Fprintf(&b, " (fk %s)", a.ForeignKey)
	case KindManyToMany:
		fmt.Fprintf(&b, " (via %s.%s/%s)", a.JoinTable, a.SourceKey, a.TargetKey)
	case KindPolymorphic, KindBelongsToPolymorphic:
		fmt.Fprintf(&b, " (fk %s, type %s=%q)", a.ForeignKey, a.TypeColumn, a.TypeValue)
	}
	if a.Role != "" {
		fmt.Fprintf(&b, " role=%s", a.Role)
	}
	return b.String()
}

// AssociationOption customizes a declared association
type AssociationOption func(*Association)

// WithForeignKey overrides the referencing column.
func WithForeignKey(column string) AssociationOption {
	return func(a *Association) { a.ForeignKey = strings.ToLower(column) }
}

// WithRole names the association so it can be selected among several to the same target.
func WithRole(role string) AssociationOption {
	return func(a *Association) { a.Role = role }
}

// WithJoinTable overrides the many-to-many join table.
func WithJoinTable(table string) AssociationOption {
	return func(a *Association) { a.JoinTable = strings.ToLower(table) }
}

// WithKeys sets the join table columns referencing source and target. Required when both
// tables singularize to the same name.
func WithKeys(sourceKey, targetKey string) AssociationOption {
	return func(a *Association) {
		a.SourceKey = strings.ToLower(sourceKey)
		a.TargetKey = strings.ToLower(targetKey)
	}
}

// WithTypeColumn overrides the polymorphic discriminator column.
func WithTypeColumn(column string) AssociationOption {
	return func(a *Association) { a.TypeColumn = strings.ToLower(column) }
}

// WithTypeValue overrides the discriminator value written for the owner.
func WithTypeValue(value string) AssociationOption {
	return func(a *Association) { a.TypeValue = value }
}

func declare(kind Kind, target string, opts []AssociationOption) Association {
	a := Association{Kind: kind, Target: strings.ToLower(target)}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// BelongsTo declares that the owning table references target.
func BelongsTo(target string, opts ...AssociationOption) Association {
	return declare(KindBelongsTo, target, opts)
}

// HasMany declares a one-to-many association from the owning table to target.
func HasMany(target string, opts ...AssociationOption) Association {
	return declare(KindOneToMany, target, opts)
}

// ManyToMany declares a many-to-many association to target.
func ManyToMany(target string, opts ...AssociationOption) Association {
	return declare(KindManyToMany, target, opts)
}

// ManyToManyVia declares a many-to-many association through joinTable, the target is derived
// from the join table name at registration.
func ManyToManyVia(joinTable string, opts ...AssociationOption) Association {
	a := declare(KindManyToMany, "", opts)
	a.JoinTable = strings.ToLower(joinTable)
	return a
}

// HasManyPolymorphic declares that target rows reference the owner by id and discriminator.
func HasManyPolymorphic(target string, opts ...AssociationOption) Association {
	return declare(KindPolymorphic, target, opts)
}

// BelongsToPolymorphic declares the child side of a polymorphic association.
func BelongsToPolymorphic(opts ...AssociationOption) Association {
	return declare(KindBelongsToPolymorphic, "", opts)
}

// complete fills the convention defaults of an association declared on owner.
func complete(owner *Table, a Association) (Association, error) {
	a.Source = owner.name
	switch a.Kind {
	case KindBelongsTo:
		if a.ForeignKey == "" {
			a.ForeignKey = inflect.ForeignKey(a.Target)
		}
		if !owner.HasAttribute(a.ForeignKey) {
			return a, &ConfigError{Table: owner.name, Field: a.ForeignKey, Message: "belongs-to foreign key is not an attribute"}
		}
	case KindOneToMany:
		if a.ForeignKey == "" {
			a.ForeignKey = inflect.ForeignKey(owner.name)
		}
	case KindManyToMany:
		if a.Target == "" {
			other, ok := inflect.OtherTableName(owner.name, a.JoinTable)
			if !ok {
				return a, &ConfigError{Table: owner.name, Field: a.JoinTable, Message: "cannot derive target from join table name, declare the target explicitly"}
			}
			a.Target = other
		}
		if a.JoinTable == "" {
			a.JoinTable = inflect.JoinTableName(owner.name, a.Target)
		}
		if a.SourceKey == "" {
			a.SourceKey = inflect.ForeignKey(owner.name)
		}
		if a.TargetKey == "" {
			a.TargetKey = inflect.ForeignKey(a.Target)
		}
		if a.SourceKey == a.TargetKey {
			return a, &ConfigError{Table: owner.name, Field: a.JoinTable, Message: "source and target keys collide, set them with WithKeys"}
		}
	case KindPolymorphic:
		if a.ForeignKey == "" {
			a.ForeignKey = DefaultPolymorphicIDColumn
		}
		if a.TypeColumn == "" {
			a.TypeColumn = DefaultPolymorphicTypeColumn
		}
		if a.TypeValue == "" {
			a.TypeValue = owner.typeName
		}
	case KindBelongsToPolymorphic:
		if a.ForeignKey == "" {
			a.ForeignKey = DefaultPolymorphicIDColumn
		}
		if a.TypeColumn == "" {
			a.TypeColumn = DefaultPolymorphicTypeColumn
		}
		if !owner.HasAttribute(a.ForeignKey) || !owner.HasAttribute(a.TypeColumn) {
			return a, &ConfigError{Table: owner.name, Field: a.TypeColumn, Message: "polymorphic id and type columns must be attributes"}
		}
	default:
		return a, &ConfigError{Table: owner.name, Message: fmt.Sprintf("unknown association kind %d", int(a.Kind))}
	}
	return a, nil
}
