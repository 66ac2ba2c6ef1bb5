package meta

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/orm4go/pkg/db"
)

type fakeSQLite struct {
	tables map[string][]string
	order  []string
}

func (f *fakeSQLite) Query(_ context.Context, query string, args ...any) ([]db.Row, error) {
	if len(args) == 0 {
		rows := make([]db.Row, 0, len(f.order))
		for _, name := range f.order {
			rows = append(rows, db.Row{"name": name})
		}
		return rows, nil
	}
	cols, ok := f.tables[fmt.Sprint(args[0])]
	if !ok {
		return nil, fmt.Errorf("no such table %v", args[0])
	}
	rows := make([]db.Row, 0, len(cols))
	for _, c := range cols {
		pk := int64(0)
		if c == "id" {
			pk = 1
		}
		rows = append(rows, db.Row{"name": c, "pk": pk})
	}
	return rows, nil
}

func TestDiscoverSQLite(t *testing.T) {
	q := &fakeSQLite{
		order: []string{"addresses", "doctors", "doctors_patients", "patients", "users", "watermelons", "comments"},
		tables: map[string][]string{
			"addresses":        {"id", "address1", "city", "user_id"},
			"doctors":          {"id", "name"},
			"doctors_patients": {"id", "doctor_id", "patient_id"},
			"patients":         {"id", "first_name"},
			"users":            {"id", "first_name", "email"},
			"watermelons":      {"id", "melon_type", "record_version", "created_at", "updated_at"},
			"comments":         {"id", "body", "parent_id", "parent_type"},
		},
	}

	specs, err := Discover(context.Background(), q, db.DialectSQLite, DiscoverOptions{Cacheable: true})
	require.NoError(t, err)
	require.Len(t, specs, 7)

	r := NewRegistry()
	require.NoError(t, r.RegisterAll(specs))

	melons, err := r.Table("watermelons")
	require.NoError(t, err)
	assert.Equal(t, "record_version", melons.VersionColumn())
	assert.True(t, melons.Cacheable())
	created, updated := melons.Timestamps()
	assert.True(t, created)
	assert.True(t, updated)

	doctors, err := r.Table("doctors")
	require.NoError(t, err)
	require.Len(t, doctors.Associations(), 1)
	assert.Equal(t, KindManyToMany, doctors.Associations()[0].Kind)
	assert.Equal(t, "doctors_patients", doctors.Associations()[0].JoinTable)

	users, err := r.Table("users")
	require.NoError(t, err)
	require.Len(t, users.Associations(), 1)
	assert.Equal(t, Association{Kind: KindOneToMany, Source: "users", Target: "addresses", ForeignKey: "user_id"}, users.Associations()[0])

	comments, err := r.Table("comments")
	require.NoError(t, err)
	require.Len(t, comments.Associations(), 1)
	assert.Equal(t, KindBelongsToPolymorphic, comments.Associations()[0].Kind)

	res := NewResolver(r)
	a, err := res.Resolve("patients", "doctors", nil)
	require.NoError(t, err)
	assert.Equal(t, "patient_id", a.SourceKey)
}

func TestDiscoverRestrictsTables(t *testing.T) {
	q := &fakeSQLite{
		order: []string{"users", "addresses"},
		tables: map[string][]string{
			"addresses": {"id", "user_id"},
			"users":     {"id", "email"},
		},
	}
	specs, err := Discover(context.Background(), q, db.DialectSQLite, DiscoverOptions{Tables: []string{"USERS"}})
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "users", specs[0].Name)
	assert.Empty(t, specs[0].Associations)
}

func TestDiscoverUnsupportedDialect(t *testing.T) {
	_, err := Discover(context.Background(), &fakeSQLite{}, db.Dialect("oracle"), DiscoverOptions{})
	assert.Error(t, err)
}

func TestInferSpecsPrimaryKey(t *testing.T) {
	specs := InferSpecs([]Column{
		{Table: "animals", Name: "animal_id", PrimaryKey: true},
		{Table: "animals", Name: "name"},
	}, DiscoverOptions{})
	require.Len(t, specs, 1)
	assert.Equal(t, "animal_id", specs[0].IDColumn)
	assert.Empty(t, specs[0].VersionColumn)
}
