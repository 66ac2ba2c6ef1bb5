package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ozzo "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/ammar0144/orm4go/pkg/db"
	"github.com/ammar0144/orm4go/pkg/meta"
	"github.com/ammar0144/orm4go/pkg/record"
)

func people(t *testing.T) *meta.Table {
	t.Helper()
	reg := meta.NewRegistry()
	table, err := reg.Register(meta.TableSpec{
		Name:       "people",
		Attributes: []string{"name", "last_name", "dob", "graduation_date", "age", "email", "zip"},
	})
	require.NoError(t, err)
	return table
}

func TestPersonPresence(t *testing.T) {
	set := NewSet()
	set.Add("people", Presence("name", "last_name"))

	p := record.New(people(t))
	require.NoError(t, p.Set("name", "  "))

	errs := set.Validate(p)
	require.Equal(t, 2, errs.Len())
	assert.Equal(t, MsgMissing, errs.Message("name"))
	assert.Equal(t, MsgMissing, errs.Message("last_name"))
	assert.Equal(t, "last_name: value is missing; name: value is missing.", errs.Error())

	var oe ozzo.Error
	require.True(t, errors.As(errs["name"], &oe))
	assert.Equal(t, CodeMissing, oe.Code())

	require.NoError(t, p.Set("name", "John"))
	require.NoError(t, p.Set("last_name", "Doe"))
	assert.NoError(t, set.Validate(p).Err())
}

func TestFirstFailureWins(t *testing.T) {
	set := NewSet()
	set.Add("people",
		Presence("age"),
		Range("age", 1, 120),
		ValidatorFunc(func(r *record.Record, errs Errors) { errs.AddMessage("age", "later") }),
	)

	p := record.New(people(t))
	errs := set.Validate(p)
	assert.Equal(t, 1, errs.Len())
	assert.Equal(t, MsgMissing, errs.Message("age"))

	require.NoError(t, p.Set("age", 150))
	errs = set.Validate(p)
	assert.Equal(t, "value is greater than 120", errs.Message("age"))
}

func TestNumeric(t *testing.T) {
	table := people(t)
	check := func(v Validator, value any) string {
		errs := make(Errors)
		v.Validate(record.Load(table, db.Row{"age": value}), errs)
		return errs.Message("age")
	}

	assert.Equal(t, "", check(Range("age", 0, 10), 0))
	assert.Equal(t, "", check(Range("age", 0, 10), "7"))
	assert.Equal(t, "", check(Range("age", 0, 10), float32(9.5)))
	assert.Equal(t, "value is less than 0", check(Range("age", 0, 10), int64(-1)))
	assert.Equal(t, MsgNotNumber, check(Numeric("age"), "twelve"))
	assert.Equal(t, MsgNotNumber, check(Numeric("age"), true))
	assert.Equal(t, MsgNotInteger, check(Numeric("age").OnlyInteger(), 2.5))
	assert.Equal(t, MsgMissing, check(Numeric("age"), nil))
	assert.Equal(t, "", check(Numeric("age").AllowNull(), nil))
	assert.Equal(t, "", check(Numeric("age").Min(18), []byte("21")))
}

func TestFormatAndEmail(t *testing.T) {
	table := people(t)
	v := []Validator{Regexp("zip", `^\d{5}$`), Email("email")}
	validate := func(row db.Row) Errors {
		errs := make(Errors)
		for _, x := range v {
			x.Validate(record.Load(table, row), errs)
		}
		return errs
	}

	assert.Equal(t, 0, validate(db.Row{}).Len(), "unset values are left to Presence")
	assert.Equal(t, 0, validate(db.Row{"zip": int64(60606), "email": "john@example.com"}).Len())

	errs := validate(db.Row{"zip": "6060", "email": "john"})
	assert.Equal(t, MsgFormat, errs.Message("zip"))
	assert.Equal(t, MsgEmail, errs.Message("email"))
}

func TestFuncAndRules(t *testing.T) {
	table := people(t)
	future := Func("graduation_date", func(value any) error {
		if value == "2099-01-01" {
			return errors.New("graduation date is in the future")
		}
		return nil
	})
	length := Rules("name", ozzo.Length(2, 5).Error("bad length"))

	errs := make(Errors)
	r := record.Load(table, db.Row{"graduation_date": "2099-01-01", "name": "J"})
	future.Validate(r, errs)
	length.Validate(r, errs)
	assert.Equal(t, "graduation date is in the future", errs.Message("graduation_date"))
	assert.Equal(t, "bad length", errs.Message("name"))

	out, err := errs.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"graduation_date":"graduation date is in the future","name":"bad length"}`, string(out))
}
