package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ammar0144/orm4go/pkg/db"
	"github.com/ammar0144/orm4go/pkg/inflect"
	"github.com/ammar0144/orm4go/pkg/meta"
	"github.com/ammar0144/orm4go/pkg/record"
)

// ============================================================================
// ASSOCIATIONS - structural writes invalidate every table of the association
// ============================================================================

// childQuery selects the target rows of a one-to-many, polymorphic or many-to-many
// association owned by the row with key id.
func childQuery(a meta.Association, target *meta.Table, id any) *db.Builder {
	b := db.NewBuilder(target.Name())
	switch a.Kind {
	case meta.KindManyToMany:
		b.Select(target.Name()+".*").
			InnerJoin(a.JoinTable, fmt.Sprintf("%s.%s = %s.%s", target.Name(), target.IDColumn(), a.JoinTable, a.TargetKey)).
			Where(a.JoinTable+"."+a.SourceKey, db.Equal, id).
			OrderBy(target.Name()+"."+target.IDColumn(), false)
		return b
	case meta.KindPolymorphic:
		b.Where(a.ForeignKey, db.Equal, id).Where(a.TypeColumn, db.Equal, a.TypeValue)
	case meta.KindBelongsTo:
		b.Where(target.IDColumn(), db.Equal, id)
	default:
		b.Where(a.ForeignKey, db.Equal, id)
	}
	return b.OrderBy(target.IDColumn(), false)
}

func (s *Session) checkMutable(parent, child *record.Record) error {
	if err := parent.CheckMutable(); err != nil {
		return err
	}
	return child.CheckMutable()
}

// Add links child to parent across their association.
//
// One-to-many sets the child's foreign key and saves it, polymorphic also sets the
// discriminator. Many-to-many saves a new child and inserts one join row. From the
// belongs-to side, the parent record takes the child's key. parent must be persisted.
func (s *Session) Add(ctx context.Context, parent, child *record.Record, override *meta.Override) error {
	if err := s.checkMutable(parent, child); err != nil {
		return err
	}
	if parent.IsNew() {
		return fmt.Errorf("%w: save the %s record before adding to it", ErrNotPersisted, parent.TableName())
	}
	a, err := s.resolver.Resolve(parent.TableName(), child.TableName(), override)
	if err != nil {
		return err
	}

	err = s.atomically(ctx, func(tx *Session) error {
		switch a.Kind {
		case meta.KindOneToMany:
			if err := child.Set(a.ForeignKey, parent.ID()); err != nil {
				return err
			}
			_, err := tx.Save(ctx, child)
			return err

		case meta.KindPolymorphic:
			if err := child.Set(a.ForeignKey, parent.ID()); err != nil {
				return err
			}
			if err := child.Set(a.TypeColumn, a.TypeValue); err != nil {
				return err
			}
			_, err := tx.Save(ctx, child)
			return err

		case meta.KindManyToMany:
			if child.IsNew() {
				if _, err := tx.Save(ctx, child); err != nil {
					return err
				}
			}
			query := db.NewBuilder(a.JoinTable).BuildInsert([]string{a.SourceKey, a.TargetKey})
			if _, err := tx.exec.Insert(ctx, query, "", parent.ID(), child.ID()); err != nil {
				return fmt.Errorf("failed to link %s %v to %s %v: %w", parent.TableName(), parent.ID(), child.TableName(), child.ID(), err)
			}
			return nil

		case meta.KindBelongsTo:
			if child.IsNew() {
				if _, err := tx.Save(ctx, child); err != nil {
					return err
				}
			}
			if err := parent.Set(a.ForeignKey, child.ID()); err != nil {
				return err
			}
			_, err := tx.Save(ctx, parent)
			return err
		}
		return &meta.NotAssociatedError{Source: a.Source, Target: child.TableName()}
	})
	if err != nil {
		return err
	}
	s.invalidateLinks(ctx, a.Tables()...)
	return nil
}

// Remove unlinks child from parent. One-to-many and polymorphic children are deleted,
// many-to-many loses the join row and a belongs-to parent has its foreign key cleared.
func (s *Session) Remove(ctx context.Context, parent, child *record.Record, override *meta.Override) error {
	if err := s.checkMutable(parent, child); err != nil {
		return err
	}
	if parent.IsNew() || child.IsNew() {
		return fmt.Errorf("%w: cannot remove unsaved records", ErrNotPersisted)
	}
	a, err := s.resolver.Resolve(parent.TableName(), child.TableName(), override)
	if err != nil {
		return err
	}

	switch a.Kind {
	case meta.KindOneToMany, meta.KindPolymorphic:
		err = s.Delete(ctx, child)
	case meta.KindManyToMany:
		query := db.NewBuilder(a.JoinTable).BuildDelete(a.SourceKey, a.TargetKey)
		if _, err = s.exec.Exec(ctx, query, parent.ID(), child.ID()); err != nil {
			err = fmt.Errorf("failed to unlink %s %v from %s %v: %w", parent.TableName(), parent.ID(), child.TableName(), child.ID(), err)
		}
	case meta.KindBelongsTo:
		if err = parent.Set(a.ForeignKey, nil); err == nil {
			_, err = s.Save(ctx, parent)
		}
	default:
		err = &meta.NotAssociatedError{Source: a.Source, Target: child.TableName()}
	}
	if err != nil {
		return err
	}
	s.invalidateLinks(ctx, a.Tables()...)
	return nil
}

// ============================================================================
// NAVIGATION - cached under the target table's group
// ============================================================================

// GetAll returns the target rows associated with parent: its children for one-to-many,
// polymorphic and many-to-many, or the single referenced row for belongs-to.
func (s *Session) GetAll(ctx context.Context, parent *record.Record, target string, override *meta.Override) ([]*record.Record, error) {
	a, err := s.resolver.Resolve(parent.TableName(), target, override)
	if err != nil {
		return nil, err
	}
	t, err := s.registry.Table(a.Target)
	if err != nil {
		return nil, err
	}

	key := parent.ID()
	if a.Kind == meta.KindBelongsTo {
		key = parent.Get(a.ForeignKey)
	}
	if key == nil {
		return []*record.Record{}, nil
	}

	query, args := childQuery(a, t, key).BuildSelect()
	rows, err := s.fetch(ctx, t, query, args)
	if err != nil {
		return nil, err
	}
	return record.LoadAll(t, rows), nil
}

// Parent returns the row child belongs to in parentTable. An empty parentTable is allowed
// when child has exactly one possible parent table, otherwise an AmbiguousParentError lists
// the candidates. Polymorphic children are matched by their discriminator.
func (s *Session) Parent(ctx context.Context, child *record.Record, parentTable string) (*record.Record, error) {
	if parentTable == "" {
		candidates := s.parentTables(child)
		switch len(candidates) {
		case 0:
			return nil, &meta.NotAssociatedError{Source: child.TableName(), Target: "any parent"}
		case 1:
			parentTable = candidates[0]
		default:
			return nil, &AmbiguousParentError{Table: child.TableName(), Candidates: candidates}
		}
	}
	parentTable = strings.ToLower(parentTable)

	if a, err := s.resolver.Resolve(child.TableName(), parentTable, nil); err == nil && a.Kind == meta.KindBelongsTo {
		fk := child.Get(a.ForeignKey)
		if fk == nil {
			return nil, notFound(parentTable, a.ForeignKey, nil)
		}
		return s.Find(ctx, parentTable, fk)
	} else if err != nil && !meta.IsNotAssociated(err) {
		return nil, err
	}

	a, err := s.resolver.Resolve(parentTable, child.TableName(), nil)
	if err != nil {
		return nil, err
	}
	if a.Kind != meta.KindPolymorphic {
		return nil, &meta.NotAssociatedError{Source: child.TableName(), Target: parentTable}
	}
	id := child.Get(a.ForeignKey)
	if id == nil || child.GetString(a.TypeColumn) != a.TypeValue {
		return nil, notFound(parentTable, a.TypeColumn, a.TypeValue)
	}
	return s.Find(ctx, parentTable, id)
}

// parentTables lists the sorted tables child may belong to.
func (s *Session) parentTables(child *record.Record) []string {
	t := child.Table()
	var out []string
	add := func(name string) {
		if name != "" && s.registry.Registered(name) && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}

	for _, a := range t.Associations() {
		switch a.Kind {
		case meta.KindBelongsTo:
			add(a.Target)
		case meta.KindBelongsToPolymorphic:
			if parent, err := s.registry.TableByType(child.GetString(a.TypeColumn)); err == nil {
				add(parent.Name())
			}
		}
	}
	for _, other := range s.registry.Tables() {
		for _, a := range other.Associations() {
			if a.Target != t.Name() {
				continue
			}
			switch a.Kind {
			case meta.KindOneToMany:
				add(a.Source)
			case meta.KindPolymorphic:
				if child.GetString(a.TypeColumn) == a.TypeValue {
					add(a.Source)
				}
			}
		}
	}
	for _, attr := range t.Attributes() {
		if attr == t.IDColumn() || !strings.HasSuffix(attr, inflect.IDSuffix) {
			continue
		}
		add(inflect.Pluralize(strings.TrimSuffix(attr, inflect.IDSuffix)))
	}

	slices.Sort(out)
	return out
}

// Include eager loads the target rows of every record for serialization.
func (s *Session) Include(ctx context.Context, records []*record.Record, targets ...string) error {
	for _, r := range records {
		for _, target := range targets {
			children, err := s.GetAll(ctx, r, target, nil)
			if err != nil {
				return err
			}
			r.SetChildren(target, children)
		}
	}
	return nil
}
