package record

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/orm4go/pkg/db"
	"github.com/ammar0144/orm4go/pkg/meta"
)

func tables(t *testing.T) (students, addresses, watermelons *meta.Table) {
	t.Helper()
	reg := meta.NewRegistry()
	require.NoError(t, reg.RegisterAll([]meta.TableSpec{
		{Name: "students", Attributes: []string{"first_name", "last_name", "dob"},
			Associations: []meta.Association{meta.HasMany("addresses")}},
		{Name: "addresses", Attributes: []string{"street", "student_id"}},
		{Name: "watermelons", Attributes: []string{"melon_type", "record_version"}, VersionColumn: "record_version"},
	}))
	students, _ = reg.Table("students")
	addresses, _ = reg.Table("addresses")
	watermelons, _ = reg.Table("watermelons")
	return students, addresses, watermelons
}

func TestLifecycle(t *testing.T) {
	students, _, _ := tables(t)

	r := New(students)
	assert.True(t, r.IsNew())
	assert.Equal(t, StateNew, r.State())
	assert.Equal(t, "new", r.State().String())
	assert.Nil(t, r.ID())

	require.NoError(t, r.Set("First_Name", "John"))
	assert.Equal(t, "John", r.Get("first_name"))
	assert.Equal(t, []string{"first_name"}, r.Dirty())

	err := r.Set("id", 3)
	assert.True(t, meta.IsIllegalAttribute(err))
	err = r.Set("shoe_size", 9)
	assert.True(t, meta.IsIllegalAttribute(err))
	assert.False(t, r.Has("shoe_size"))

	require.NoError(t, r.SetID(int64(10)))
	r.MarkPersisted(nil)
	assert.Equal(t, StatePersisted, r.State())
	assert.Equal(t, int64(10), r.ID())
	assert.False(t, r.IsDirty())
	assert.True(t, meta.IsIllegalAttribute(r.SetID(int64(11))))

	r.Freeze()
	assert.True(t, r.IsFrozen())
	assert.Equal(t, StateFrozen, r.State())
	assert.Equal(t, "frozen", r.State().String())
	err = r.Set("first_name", "Jim")
	assert.True(t, IsFrozen(err))
	assert.True(t, IsFrozen(r.CheckMutable()))
	assert.Equal(t, "John", r.Get("first_name"))
}

func TestLoadLowercasesColumns(t *testing.T) {
	students, _, _ := tables(t)
	r := Load(students, db.Row{"ID": int64(1), "FIRST_NAME": "John"})
	assert.Equal(t, int64(1), r.ID())
	assert.Equal(t, "John", r.Get("first_name"))
	assert.Equal(t, []string{"first_name", "id"}, r.Keys())
	assert.False(t, r.IsDirty())
}

func TestVersion(t *testing.T) {
	students, _, watermelons := tables(t)

	_, ok := Load(students, db.Row{"id": 1}).Version()
	assert.False(t, ok)

	m := Load(watermelons, db.Row{"id": int64(1), "record_version": "3"})
	v, ok := m.Version()
	require.True(t, ok)
	assert.Equal(t, int64(3), v)

	m.Apply("record_version", int64(4))
	v, _ = m.Version()
	assert.Equal(t, int64(4), v)
	assert.False(t, m.IsDirty())
}

func TestTypedAccessors(t *testing.T) {
	students, _, _ := tables(t)
	r := Load(students, db.Row{
		"id":         int64(7),
		"first_name": "John",
		"dob":        "1965-12-01",
		"last_name":  nil,
	})

	assert.Equal(t, int64(7), r.GetInt64("id"))
	assert.Equal(t, "7", r.GetString("id"))
	assert.Equal(t, float64(7), r.GetFloat64("id"))
	assert.True(t, r.GetBool("id"))
	assert.Equal(t, "", r.GetString("last_name"))
	assert.Equal(t, int64(0), r.GetInt64("first_name"))
	assert.Equal(t, time.Date(1965, 12, 1, 0, 0, 0, 0, time.UTC), r.GetTime("dob"))
	assert.True(t, r.GetTime("first_name").IsZero())
}

func TestDecode(t *testing.T) {
	students, _, _ := tables(t)
	r := Load(students, db.Row{"id": int64(7), "first_name": "John", "dob": "1965-12-01 10:30:00"})

	var s struct {
		ID        string    `db:"id"`
		FirstName string    `db:"first_name"`
		DOB       time.Time `db:"dob"`
	}
	require.NoError(t, r.Decode(&s))
	assert.Equal(t, "7", s.ID)
	assert.Equal(t, "John", s.FirstName)
	assert.Equal(t, 10, s.DOB.Hour())
}

func TestToInsertSortsColumns(t *testing.T) {
	students, _, _ := tables(t)
	r := Load(students, db.Row{
		"last_name":  "O'Hara",
		"id":         int64(1),
		"first_name": "John",
		"dob":        time.Date(1965, 12, 1, 0, 0, 0, 0, time.UTC),
	})

	sql := r.ToInsert()
	assert.True(t, strings.HasPrefix(sql, "INSERT INTO students (dob, first_name, id, last_name) VALUES ("))
	assert.Equal(t, "INSERT INTO students (dob, first_name, id, last_name) VALUES ('1965-12-01', 'John', 1, 'O''Hara')", sql)
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, "NULL", Literal(nil))
	assert.Equal(t, "TRUE", Literal(true))
	assert.Equal(t, "2.5", Literal(2.5))
	assert.Equal(t, "'2024-03-01 12:00:05'", Literal(time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC)))
	assert.Equal(t, "'x'", Literal([]byte("x")))
}

func TestToJSON(t *testing.T) {
	students, addresses, _ := tables(t)
	r := Load(students, db.Row{"id": int64(1), "first_name": "John", "last_name": "Doe"})
	r.SetChildren("addresses", []*Record{
		Load(addresses, db.Row{"id": int64(5), "street": "Main", "student_id": int64(1)}),
	})

	out, err := r.ToJSON(SerializeOptions{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"first_name":"John","id":1,"last_name":"Doe",
		"children":{"addresses":[{"id":5,"street":"Main","student_id":1}]}}`, string(out))
	assert.True(t, strings.HasPrefix(string(out), `{"first_name":"John","id":1,"last_name":"Doe","children"`))

	out, err = r.ToJSON(SerializeOptions{Only: []string{"First_Name"}, Children: []string{}})
	require.NoError(t, err)
	assert.Equal(t, `{"first_name":"John"}`, string(out))

	child := SerializeOptions{Except: []string{"student_id"}}
	out, err = r.ToJSON(SerializeOptions{Except: []string{"last_name"}, Child: &child})
	require.NoError(t, err)
	assert.JSONEq(t, `{"first_name":"John","id":1,"children":{"addresses":[{"id":5,"street":"Main"}]}}`, string(out))

	out, err = ToJSONArray([]*Record{r, r}, SerializeOptions{Only: []string{"id"}, Children: []string{}})
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1},{"id":1}]`, string(out))
}

func TestToXML(t *testing.T) {
	students, addresses, _ := tables(t)
	r := Load(students, db.Row{"id": int64(1), "first_name": "Jim & Jo", "last_name": nil})
	r.SetChildren("addresses", []*Record{Load(addresses, db.Row{"id": int64(5), "street": "Main"})})

	out, err := r.ToXML(SerializeOptions{})
	require.NoError(t, err)
	assert.Equal(t, `<student><first_name>Jim &amp; Jo</first_name><id>1</id><last_name nil="true"></last_name>`+
		`<children><addresses><address><id>5</id><street>Main</street></address></addresses></children></student>`, string(out))

	out, err = r.ToXML(SerializeOptions{Only: []string{"id"}, Children: []string{}})
	require.NoError(t, err)
	assert.Equal(t, `<student><id>1</id></student>`, string(out))
}
