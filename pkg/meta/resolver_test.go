package meta

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDeclaredManyToMany(t *testing.T) {
	res := NewResolver(newClinic(t))

	a, err := res.Resolve("doctors", "patients", nil)
	require.NoError(t, err)
	assert.Equal(t, KindManyToMany, a.Kind)
	assert.Equal(t, "doctors_patients", a.JoinTable)
	assert.Equal(t, "doctor_id", a.SourceKey)
	assert.Equal(t, "patient_id", a.TargetKey)

	// declared on doctors only, the inverse is found from patients
	inv, err := res.Resolve("patients", "doctors", nil)
	require.NoError(t, err)
	assert.Equal(t, KindManyToMany, inv.Kind)
	assert.Equal(t, "patients", inv.Source)
	assert.Equal(t, "patient_id", inv.SourceKey)
	assert.Equal(t, "doctor_id", inv.TargetKey)
}

func TestResolveByConvention(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterAll([]TableSpec{
		{Name: "users", Attributes: []string{"first_name"}},
		{Name: "addresses", Attributes: []string{"city", "user_id"}},
		{Name: "programmers", Attributes: []string{"name"}},
		{Name: "projects", Attributes: []string{"name"}},
		{Name: "projects_programmers", Attributes: []string{"project_id", "programmer_id", "duration_weeks"}},
		{Name: "articles", Attributes: []string{"title"}},
		{Name: "comments", Attributes: []string{"body", "parent_id", "parent_type"}},
	}))
	res := NewResolver(r)

	a, err := res.Resolve("addresses", "users", nil)
	require.NoError(t, err)
	assert.Equal(t, Association{Kind: KindBelongsTo, Source: "addresses", Target: "users", ForeignKey: "user_id"}, a)

	a, err = res.Resolve("users", "addresses", nil)
	require.NoError(t, err)
	assert.Equal(t, Association{Kind: KindOneToMany, Source: "users", Target: "addresses", ForeignKey: "user_id"}, a)

	a, err = res.Resolve("programmers", "projects", nil)
	require.NoError(t, err)
	assert.Equal(t, KindManyToMany, a.Kind)
	assert.Equal(t, "projects_programmers", a.JoinTable)
	assert.Equal(t, "programmer_id", a.SourceKey)

	a, err = res.Resolve("articles", "comments", nil)
	require.NoError(t, err)
	assert.Equal(t, KindPolymorphic, a.Kind)
	assert.Equal(t, "Article", a.TypeValue)
	assert.Equal(t, "parent_type", a.TypeColumn)
	assert.Equal(t, "parent_id", a.ForeignKey)
}

func TestResolveNotAssociated(t *testing.T) {
	res := NewResolver(newClinic(t))

	_, err := res.Resolve("watermelons", "doctors", nil)
	require.Error(t, err)
	assert.True(t, IsNotAssociated(err))

	var na *NotAssociatedError
	require.True(t, errors.As(err, &na))
	assert.Equal(t, "watermelons", na.Source)
	assert.Equal(t, "doctors", na.Target)

	_, err = res.Resolve("watermelons", "ghosts", nil)
	assert.True(t, IsMetadataNotFound(err))
}

func TestResolveIsIdempotent(t *testing.T) {
	res := NewResolver(newClinic(t))

	first, err := res.Resolve("users", "addresses", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]Association, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = res.Resolve("USERS", "addresses", nil)
		}(i)
	}
	wg.Wait()

	for _, a := range results {
		assert.Equal(t, first, a)
	}
}

func TestResolveAmbiguousNeedsRole(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterAll([]TableSpec{
		{Name: "computers", Attributes: []string{"description", "mother_id", "key_id"}, Associations: []Association{
			BelongsTo("boards", WithForeignKey("mother_id"), WithRole("motherboard")),
			BelongsTo("boards", WithForeignKey("key_id"), WithRole("keyboard")),
		}},
		{Name: "boards", Attributes: []string{"description"}},
	}))
	res := NewResolver(r)

	_, err := res.Resolve("computers", "boards", nil)
	require.Error(t, err)
	var amb *AmbiguousAssociationError
	require.True(t, errors.As(err, &amb))
	assert.Equal(t, []string{"motherboard", "keyboard"}, amb.Roles)

	a, err := res.Resolve("computers", "boards", &Override{Role: "keyboard"})
	require.NoError(t, err)
	assert.Equal(t, "key_id", a.ForeignKey)

	// the inverse side sees the same ambiguity
	_, err = res.Resolve("boards", "computers", nil)
	assert.True(t, IsAmbiguousAssociation(err))

	a, err = res.Resolve("boards", "computers", &Override{Role: "motherboard"})
	require.NoError(t, err)
	assert.Equal(t, KindOneToMany, a.Kind)
	assert.Equal(t, "mother_id", a.ForeignKey)

	_, err = res.Resolve("computers", "boards", &Override{Role: "mouse"})
	assert.True(t, IsNotAssociated(err))
}

func TestResolveJoinTableOverride(t *testing.T) {
	r := newClinic(t)
	require.NoError(t, r.RegisterAll([]TableSpec{
		{Name: "referrals", Attributes: []string{"doctor_id", "patient_id", "reason"}},
		{Name: "rooms", Attributes: []string{"number"}},
	}))
	res := NewResolver(r)

	a, err := res.Resolve("doctors", "patients", &Override{JoinTable: "referrals"})
	require.NoError(t, err)
	assert.Equal(t, "referrals", a.JoinTable)
	assert.Equal(t, "doctor_id", a.SourceKey)

	_, err = res.Resolve("doctors", "patients", &Override{JoinTable: "rooms"})
	assert.True(t, IsConfig(err))

	_, err = res.Resolve("doctors", "patients", &Override{JoinTable: "missing"})
	assert.True(t, IsMetadataNotFound(err))

	// overrides are not memoized
	a, err = res.Resolve("doctors", "patients", nil)
	require.NoError(t, err)
	assert.Equal(t, "doctors_patients", a.JoinTable)
}

func TestResolveAssociationOverride(t *testing.T) {
	res := NewResolver(newClinic(t))
	explicit := Association{Kind: KindOneToMany, Source: "users", Target: "addresses", ForeignKey: "user_id", Role: "home"}

	a, err := res.Resolve("users", "addresses", &Override{Association: &explicit})
	require.NoError(t, err)
	assert.Equal(t, explicit, a)

	_, err = res.Resolve("doctors", "addresses", &Override{Association: &explicit})
	assert.True(t, IsConfig(err))
}

func TestChildren(t *testing.T) {
	res := NewResolver(newClinic(t))

	children, err := res.Children("users")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, KindOneToMany, children[0].Kind)
	assert.Equal(t, "addresses", children[0].Target)

	children, err = res.Children("patients")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, KindManyToMany, children[0].Kind)
	assert.Equal(t, "doctors", children[0].Target)

	children, err = res.Children("addresses")
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestChildrenByConvention(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterAll([]TableSpec{
		{Name: "users", Attributes: []string{"first_name"}},
		{Name: "addresses", Attributes: []string{"city", "user_id"}},
		{Name: "programmers", Attributes: []string{"name"}},
		{Name: "projects", Attributes: []string{"name"}},
		{Name: "projects_programmers", Attributes: []string{"project_id", "programmer_id"}},
		{Name: "comments", Attributes: []string{"body", "parent_id", "parent_type"}},
	}))
	res := NewResolver(r)

	children, err := res.Children("users")
	require.NoError(t, err)
	assert.ElementsMatch(t, []Association{
		{Kind: KindOneToMany, Source: "users", Target: "addresses", ForeignKey: "user_id"},
		{Kind: KindPolymorphic, Source: "users", Target: "comments", ForeignKey: "parent_id", TypeColumn: "parent_type", TypeValue: "User"},
	}, children)

	children, err = res.Children("programmers")
	require.NoError(t, err)
	var kinds []Kind
	for _, a := range children {
		kinds = append(kinds, a.Kind)
		assert.NotEqual(t, "projects_programmers", a.Target, "join tables are not row children")
	}
	assert.ElementsMatch(t, []Kind{KindManyToMany, KindPolymorphic}, kinds)

	// every child is also what Resolve answers for the pair
	for _, a := range children {
		resolved, err := res.Resolve(a.Source, a.Target, nil)
		require.NoError(t, err)
		assert.Equal(t, resolved, a)
	}
}

func TestAssociationInverse(t *testing.T) {
	poly := Association{Kind: KindPolymorphic, Source: "articles", Target: "comments", ForeignKey: "parent_id", TypeColumn: "parent_type", TypeValue: "Article"}
	inv, ok := poly.Inverse()
	require.True(t, ok)
	assert.Equal(t, KindBelongsToPolymorphic, inv.Kind)
	assert.Equal(t, "comments", inv.Source)
	assert.Empty(t, inv.Target)

	_, ok = inv.Inverse()
	assert.False(t, ok)

	m2m := Association{Kind: KindManyToMany, Source: "doctors", Target: "patients", JoinTable: "doctors_patients", SourceKey: "doctor_id", TargetKey: "patient_id"}
	back, ok := m2m.Inverse()
	require.True(t, ok)
	again, ok := back.Inverse()
	require.True(t, ok)
	assert.Equal(t, m2m, again)
	assert.Equal(t, []string{"doctors", "patients", "doctors_patients"}, m2m.Tables())
}
