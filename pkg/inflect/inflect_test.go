package inflect

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPluralizeSingularizeRoundTrip(t *testing.T) {
	words := []string{
		"doctor", "patient", "user", "project", "programmer", "keyboard", "motherboard",
		"student", "watermelon", "category", "city", "box", "match", "address",
	}
	for _, w := range words {
		t.Run(w, func(t *testing.T) {
			plural := Pluralize(w)
			assert.NotEqual(t, w, plural)
			assert.Equal(t, w, Singularize(plural))
		})
	}
}

func TestUncountablesAreFixedPoints(t *testing.T) {
	for _, w := range []string{"equipment", "sheep", "fish", "information", "rice"} {
		assert.Equal(t, w, Pluralize(w), w)
		assert.Equal(t, w, Singularize(w), w)
	}
}

func TestIrregulars(t *testing.T) {
	cases := map[string]string{
		"person": "people",
		"man":    "men",
		"child":  "children",
	}
	for singular, plural := range cases {
		assert.Equal(t, plural, Pluralize(singular))
		assert.Equal(t, singular, Singularize(plural))
	}
}

func TestLaterRulesTakePriority(t *testing.T) {
	AddIrregular("cactus", "cacti")
	assert.Equal(t, "cacti", Pluralize("cactus"))
	assert.Equal(t, "cactus", Singularize("cacti"))

	AddUncountable("firmware")
	assert.Equal(t, "firmware", Pluralize("firmware"))
}

func TestUnderscore(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"FirstName", "first_name"},
		{"firstName", "first_name"},
		{"LineItem", "line_item"},
		{"ID", "id"},
		{"Address2Line", "address2_line"},
		{"first name", "first_name"},
		// acronym runs are not split
		{"HTTPServer", "httpserver"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Underscore(tt.in), tt.in)
	}
}

func TestCamelize(t *testing.T) {
	assert.Equal(t, "FirstName", Camelize("first_name", true))
	assert.Equal(t, "firstName", Camelize("first_name", false))
	assert.Equal(t, "LineItem", Camelize("line_item", true))
	assert.Equal(t, "", Camelize("", true))

	for _, w := range []string{"first_name", "record_version", "doctor"} {
		assert.Equal(t, w, Underscore(Camelize(w, true)))
	}
}

func TestForeignKeyAndNames(t *testing.T) {
	assert.Equal(t, "person_id", ForeignKey("people"))
	assert.Equal(t, "doctor_id", ForeignKey("Doctors"))
	assert.Equal(t, "LineItem", TypeName("line_items"))
	assert.Equal(t, "people", TableName("Person"))
	assert.Equal(t, "line_items", TableName("LineItem"))
	assert.Equal(t, "doctors_patients", JoinTableName("patients", "doctors"))
	assert.Equal(t, "doctors_patients", JoinTableName("doctors", "patients"))
}

func TestOtherTableName(t *testing.T) {
	tests := []struct {
		source, join string
		want         string
		ok           bool
	}{
		{"doctors", "doctors_patients", "patients", true},
		{"patients", "doctors_patients", "doctors", true},
		{"users", "doctors_patients", "", false},
		{"doctors", "doctors", "", false},
		{"", "doctors_patients", "", false},
	}
	for _, tt := range tests {
		got, ok := OtherTableName(tt.source, tt.join)
		assert.Equal(t, tt.ok, ok, "%s/%s", tt.source, tt.join)
		assert.Equal(t, tt.want, got, "%s/%s", tt.source, tt.join)
	}
}

func TestRulesCanBeAddedWhileInflecting(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			AddUncountable("rice")
			AddIrregular("octopus", "octopodes")
		}()
		go func() {
			defer wg.Done()
			assert.Equal(t, "people", Pluralize("person"))
			assert.Equal(t, "person", Singularize("people"))
			assert.Equal(t, "people", TableName("Person"))
		}()
	}
	wg.Wait()
	assert.Equal(t, "rice", Pluralize("rice"))
	assert.Equal(t, "octopodes", Pluralize("octopus"))
}
