package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ammar0144/orm4go/pkg/meta"
	"github.com/ammar0144/orm4go/pkg/validation"
)

// TableConfig declares a table in the config file
type TableConfig struct {
	Name          string              `koanf:"name"`
	IDColumn      string              `koanf:"id_column"`
	Attributes    []string            `koanf:"attributes"`
	VersionColumn string              `koanf:"version_column"`
	TypeName      string              `koanf:"type_name"`
	Cacheable     bool                `koanf:"cacheable"`
	KeyStrategy   string              `koanf:"key_strategy"`
	Associations  []AssociationConfig `koanf:"associations"`
	Validations   []ValidationConfig  `koanf:"validations"`
}

// AssociationConfig declares one association of a table. Kind is one of belongs_to,
// has_many, many_to_many, has_many_polymorphic or belongs_to_polymorphic.
type AssociationConfig struct {
	Kind       string `koanf:"kind"`
	Target     string `koanf:"target"`
	Role       string `koanf:"role"`
	ForeignKey string `koanf:"foreign_key"`
	JoinTable  string `koanf:"join_table"`
	SourceKey  string `koanf:"source_key"`
	TargetKey  string `koanf:"target_key"`
	TypeColumn string `koanf:"type_column"`
	TypeValue  string `koanf:"type_value"`
}

// ValidationConfig declares one validator. Rule is presence, numeric, email or format.
type ValidationConfig struct {
	Attributes  []string `koanf:"attributes"`
	Rule        string   `koanf:"rule"`
	Pattern     string   `koanf:"pattern"`
	Min         *float64 `koanf:"min"`
	Max         *float64 `koanf:"max"`
	OnlyInteger bool     `koanf:"only_integer"`
	AllowNull   bool     `koanf:"allow_null"`
}

// Spec converts the declaration into a registry spec.
func (t TableConfig) Spec() (meta.TableSpec, error) {
	spec := meta.TableSpec{
		Name:          t.Name,
		IDColumn:      t.IDColumn,
		Attributes:    t.Attributes,
		VersionColumn: t.VersionColumn,
		TypeName:      t.TypeName,
		Cacheable:     t.Cacheable,
		KeyStrategy:   meta.KeyStrategy(t.KeyStrategy),
	}
	for i, a := range t.Associations {
		assoc, err := a.association()
		if err != nil {
			return meta.TableSpec{}, fmt.Errorf("tables.%s.associations[%d]: %w", t.Name, i, err)
		}
		spec.Associations = append(spec.Associations, assoc)
	}
	return spec, nil
}

func (a AssociationConfig) association() (meta.Association, error) {
	var opts []meta.AssociationOption
	if a.ForeignKey != "" {
		opts = append(opts, meta.WithForeignKey(a.ForeignKey))
	}
	if a.Role != "" {
		opts = append(opts, meta.WithRole(a.Role))
	}
	if a.JoinTable != "" {
		opts = append(opts, meta.WithJoinTable(a.JoinTable))
	}
	if a.SourceKey != "" || a.TargetKey != "" {
		opts = append(opts, meta.WithKeys(a.SourceKey, a.TargetKey))
	}
	if a.TypeColumn != "" {
		opts = append(opts, meta.WithTypeColumn(a.TypeColumn))
	}
	if a.TypeValue != "" {
		opts = append(opts, meta.WithTypeValue(a.TypeValue))
	}

	switch strings.ToLower(a.Kind) {
	case "belongs_to":
		return meta.BelongsTo(a.Target, opts...), nil
	case "has_many", "one_to_many":
		return meta.HasMany(a.Target, opts...), nil
	case "many_to_many":
		if a.Target == "" && a.JoinTable != "" {
			return meta.ManyToManyVia(a.JoinTable, opts...), nil
		}
		return meta.ManyToMany(a.Target, opts...), nil
	case "has_many_polymorphic", "polymorphic":
		return meta.HasManyPolymorphic(a.Target, opts...), nil
	case "belongs_to_polymorphic":
		return meta.BelongsToPolymorphic(opts...), nil
	default:
		return meta.Association{}, fmt.Errorf("unknown association kind %q", a.Kind)
	}
}

// Validators builds the validator set of every declared table.
func (c *Config) Validators() (*validation.Set, error) {
	set := validation.NewSet()
	for _, t := range c.Tables {
		for i, v := range t.Validations {
			validators, err := v.validators()
			if err != nil {
				return nil, fmt.Errorf("tables.%s.validations[%d]: %w", t.Name, i, err)
			}
			set.Add(t.Name, validators...)
		}
	}
	return set, nil
}

func (v ValidationConfig) validators() ([]validation.Validator, error) {
	if len(v.Attributes) == 0 {
		return nil, fmt.Errorf("no attributes")
	}

	switch strings.ToLower(v.Rule) {
	case "presence":
		return []validation.Validator{validation.Presence(v.Attributes...)}, nil
	case "email":
		return each(v.Attributes, validation.Email), nil
	case "format":
		re, err := regexp.Compile(v.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		return each(v.Attributes, func(attr string) validation.Validator {
			return validation.Format(attr, re)
		}), nil
	case "numeric":
		return each(v.Attributes, func(attr string) validation.Validator {
			n := validation.Numeric(attr)
			if v.Min != nil {
				n.Min(*v.Min)
			}
			if v.Max != nil {
				n.Max(*v.Max)
			}
			if v.OnlyInteger {
				n.OnlyInteger()
			}
			if v.AllowNull {
				n.AllowNull()
			}
			return n
		}), nil
	default:
		return nil, fmt.Errorf("unknown rule %q", v.Rule)
	}
}

func each(attrs []string, build func(string) validation.Validator) []validation.Validator {
	out := make([]validation.Validator, len(attrs))
	for i, attr := range attrs {
		out[i] = build(attr)
	}
	return out
}
