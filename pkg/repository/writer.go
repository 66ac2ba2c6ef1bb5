package repository

import (
	"context"
	"fmt"
	"slices"

	"github.com/ammar0144/orm4go/pkg/db"
	"github.com/ammar0144/orm4go/pkg/meta"
	"github.com/ammar0144/orm4go/pkg/record"
	"github.com/ammar0144/orm4go/pkg/validation"
)

// ============================================================================
// WRITE OPERATIONS - invalidate the touched cache groups on success
// ============================================================================

// Save inserts a new record or updates the dirty attributes of a persisted one.
//
// New records are inserted with every non-nil attribute; the generated key is read back
// unless the key was pre-assigned, and versioned tables start at version 1. Updates of
// versioned tables only apply while the row is still at the record's version and fail with a
// StaleModelError otherwise. Only the record's own table group is invalidated.
func (s *Session) Save(ctx context.Context, r *record.Record) (SaveResult, error) {
	if err := r.CheckMutable(); err != nil {
		return SaveResult{}, err
	}
	if err := checkContext(ctx); err != nil {
		return SaveResult{}, err
	}
	if r.IsNew() {
		return s.insert(ctx, r)
	}
	return s.update(ctx, r)
}

// SaveIt validates the record and saves it only when no validator failed.
func (s *Session) SaveIt(ctx context.Context, r *record.Record) (SaveResult, error) {
	if err := r.CheckMutable(); err != nil {
		return SaveResult{}, err
	}
	if errs := s.Validate(r); errs.Len() > 0 {
		return SaveResult{}, &ValidationError{Table: r.TableName(), Errors: errs}
	}
	return s.Save(ctx, r)
}

// Validate runs the validators registered for the record's table.
func (s *Session) Validate(r *record.Record) validation.Errors {
	if s.validators == nil {
		return validation.Errors{}
	}
	return s.validators.Validate(r)
}

func (s *Session) insert(ctx context.Context, r *record.Record) (SaveResult, error) {
	t := r.Table()

	idColumn := t.IDColumn()
	if r.ID() != nil {
		idColumn = "" // pre-assigned
	} else {
		switch t.KeyStrategy() {
		case meta.KeyUUID:
			r.Apply(t.IDColumn(), s.newID())
			idColumn = ""
		case meta.KeyManual:
			return SaveResult{}, &meta.IllegalAttributeError{Table: t.Name(), Attribute: t.IDColumn(), Reason: "primary key must be assigned before insert"}
		}
	}

	now := s.now()
	created, updated := t.Timestamps()
	if created && r.Get(meta.CreatedAtColumn) == nil {
		r.Apply(meta.CreatedAtColumn, now)
	}
	if updated && r.Get(meta.UpdatedAtColumn) == nil {
		r.Apply(meta.UpdatedAtColumn, now)
	}
	if t.Versioned() {
		r.Apply(t.VersionColumn(), int64(1))
	}

	columns := make([]string, 0, len(r.Keys()))
	args := make([]any, 0, len(r.Keys()))
	for _, k := range r.Keys() {
		if v := r.Get(k); v != nil {
			columns = append(columns, k)
			args = append(args, v)
		}
	}

	query := db.NewBuilder(t.Name()).BuildInsert(columns)
	id, err := s.exec.Insert(ctx, query, idColumn, args...)
	if err != nil {
		return SaveResult{}, fmt.Errorf("failed to insert into %s: %w", t.Name(), err)
	}
	if idColumn != "" && id == nil {
		return SaveResult{}, fmt.Errorf("insert into %s returned no generated key", t.Name())
	}

	r.MarkPersisted(id)
	s.invalidate(ctx, t.Name())

	result := SaveResult{ID: r.ID(), Inserted: true}
	result.Version, _ = r.Version()
	s.logger.Debug("record inserted", "table", t.Name(), "id", result.ID)
	return result, nil
}

func (s *Session) update(ctx context.Context, r *record.Record) (SaveResult, error) {
	t := r.Table()
	version, versioned := r.Version()
	if t.Versioned() && !versioned {
		return SaveResult{}, fmt.Errorf("%s %v has no %s value", t.Name(), r.ID(), t.VersionColumn())
	}

	dirty := slices.DeleteFunc(r.Dirty(), func(k string) bool { return k == t.VersionColumn() })
	if len(dirty) == 0 {
		return SaveResult{ID: r.ID(), Version: version, Skipped: true}, nil
	}
	args := make([]any, 0, len(dirty)+3)
	for _, k := range dirty {
		args = append(args, r.Get(k))
	}
	// the record only takes the timestamp once the row was written
	var touched any
	if _, updated := t.Timestamps(); updated && !slices.Contains(dirty, meta.UpdatedAtColumn) {
		touched = s.now()
		dirty = append(dirty, meta.UpdatedAtColumn)
		args = append(args, touched)
	}
	args = append(args, r.ID())

	builder := db.NewBuilder(t.Name())
	var query string
	if versioned {
		query = builder.BuildUpdate(dirty, t.VersionColumn(), t.IDColumn(), t.VersionColumn())
		args = append(args, version)
	} else {
		query = builder.BuildUpdate(dirty, "", t.IDColumn())
	}

	n, err := s.exec.Exec(ctx, query, args...)
	if err != nil {
		return SaveResult{}, fmt.Errorf("failed to update %s %v: %w", t.Name(), r.ID(), err)
	}
	if versioned && n == 0 {
		return SaveResult{}, &StaleModelError{Table: t.Name(), ID: r.ID(), Version: version}
	}

	if touched != nil {
		r.Apply(meta.UpdatedAtColumn, touched)
	}
	if versioned {
		version++
		r.Apply(t.VersionColumn(), version)
	}
	r.MarkPersisted(nil)
	s.invalidate(ctx, t.Name())

	s.logger.Debug("record updated", "table", t.Name(), "id", r.ID(), "columns", dirty)
	return SaveResult{ID: r.ID(), Version: version}, nil
}

// Delete removes the record's row and freezes the record.
func (s *Session) Delete(ctx context.Context, r *record.Record) error {
	if err := r.CheckMutable(); err != nil {
		return err
	}
	if r.IsNew() {
		return fmt.Errorf("%w: cannot delete a new %s record", ErrNotPersisted, r.TableName())
	}
	if err := checkContext(ctx); err != nil {
		return err
	}

	t := r.Table()
	query := db.NewBuilder(t.Name()).BuildDelete(t.IDColumn())
	if _, err := s.exec.Exec(ctx, query, r.ID()); err != nil {
		return fmt.Errorf("failed to delete %s %v: %w", t.Name(), r.ID(), err)
	}

	r.Freeze()
	s.invalidate(ctx, t.Name())
	s.logger.Debug("record deleted", "table", t.Name(), "id", r.ID())
	return nil
}

// DeleteCascade deletes the record after its dependents, depth first: one-to-many and
// polymorphic children are cascade deleted themselves, many-to-many links lose only their
// join rows. Each deletion invalidates its own table group and join row deletions also the
// far table. The whole cascade runs in one transaction when the session has a transactor.
func (s *Session) DeleteCascade(ctx context.Context, r *record.Record) error {
	if err := r.CheckMutable(); err != nil {
		return err
	}
	if r.IsNew() {
		return fmt.Errorf("%w: cannot delete a new %s record", ErrNotPersisted, r.TableName())
	}
	return s.atomically(ctx, func(tx *Session) error {
		return tx.deleteCascade(ctx, r, make(map[string]struct{}))
	})
}

func (s *Session) deleteCascade(ctx context.Context, r *record.Record, visited map[string]struct{}) error {
	key := fmt.Sprintf("%s:%v", r.TableName(), r.ID())
	if _, ok := visited[key]; ok {
		return nil
	}
	visited[key] = struct{}{}

	children, err := s.resolver.Children(r.TableName())
	if err != nil {
		return err
	}
	for _, a := range children {
		switch a.Kind {
		case meta.KindManyToMany:
			query := db.NewBuilder(a.JoinTable).BuildDelete(a.SourceKey)
			if _, err := s.exec.Exec(ctx, query, r.ID()); err != nil {
				return fmt.Errorf("failed to delete %s links of %s %v: %w", a.JoinTable, r.TableName(), r.ID(), err)
			}
			s.invalidateLinks(ctx, a.JoinTable, a.Target)

		case meta.KindOneToMany, meta.KindPolymorphic:
			target, err := s.registry.Table(a.Target)
			if err != nil {
				return err
			}
			query, args := childQuery(a, target, r.ID()).BuildSelect()
			rows, err := s.exec.Query(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("failed to load %s of %s %v: %w", a.Target, r.TableName(), r.ID(), err)
			}
			for _, child := range record.LoadAll(target, rows) {
				if err := s.deleteCascade(ctx, child, visited); err != nil {
					return err
				}
			}
		}
	}
	return s.Delete(ctx, r)
}
