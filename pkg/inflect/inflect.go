// Package inflect converts between the naming forms the ORM relies on: plural table names,
// singular model names, snake_case columns and CamelCase type names.
//
// Pluralization rules come from github.com/jinzhu/inflection, the inflector gorm uses for its
// own table naming. Irregular words and uncountables are checked before the suffix rules, and
// rules registered later take priority over the defaults.
package inflect

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/jinzhu/inflection"
	"gorm.io/gorm/schema"
)

// IDSuffix is appended to a singular table name to form a foreign key column.
const IDSuffix = "_id"

// rules guards inflection's package level rule tables, which the Add functions recompile.
// Code calling gorm's inflection directly is not covered.
var rules sync.RWMutex

// Pluralize returns the plural form of word.
func Pluralize(word string) string {
	rules.RLock()
	defer rules.RUnlock()
	return inflection.Plural(word)
}

// Singularize returns the singular form of word.
func Singularize(word string) string {
	rules.RLock()
	defer rules.RUnlock()
	return inflection.Singular(word)
}

// AddPlural registers a plural rule. find is a regular expression matched against the word,
// replace may reference its groups.
func AddPlural(find, replace string) {
	rules.Lock()
	defer rules.Unlock()
	inflection.AddPlural(find, replace)
}

// AddSingular registers a singular rule.
func AddSingular(find, replace string) {
	rules.Lock()
	defer rules.Unlock()
	inflection.AddSingular(find, replace)
}

// AddIrregular registers a singular/plural pair that bypasses the suffix rules.
func AddIrregular(singular, plural string) {
	rules.Lock()
	defer rules.Unlock()
	inflection.AddIrregular(singular, plural)
}

// AddUncountable registers words whose plural and singular forms are identical.
func AddUncountable(words ...string) {
	rules.Lock()
	defer rules.Unlock()
	inflection.AddUncountable(words...)
}

// Underscore converts CamelCase (or camelCase) to snake_case. Spaces and dashes become
// underscores.
//
// Adjacent uppercase runs are not split: "HTTPServer" becomes "httpserver", so acronyms do not
// survive a Camelize/Underscore round trip.
func Underscore(word string) string {
	var b strings.Builder
	b.Grow(len(word) + 4)

	var prev rune
	for i, r := range word {
		out := r
		switch {
		case r == ' ' || r == '-':
			out = '_'
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
				b.WriteByte('_')
			}
			out = unicode.ToLower(r)
		}
		b.WriteRune(out)
		prev = r
	}
	return b.String()
}

// Camelize converts snake_case to CamelCase. With capitalizeFirst false the first segment is
// left lowercase ("first_name" -> "firstName").
func Camelize(word string, capitalizeFirst bool) string {
	parts := strings.FieldsFunc(word, func(r rune) bool {
		return r == '_' || r == ' ' || r == '-'
	})

	var b strings.Builder
	b.Grow(len(word))
	for i, part := range parts {
		if i == 0 && !capitalizeFirst {
			b.WriteString(strings.ToLower(part))
			continue
		}
		runes := []rune(strings.ToLower(part))
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}

// ForeignKey returns the conventional foreign key column referencing table,
// e.g. "people" -> "person_id".
func ForeignKey(table string) string {
	return strings.ToLower(Singularize(table)) + IDSuffix
}

// TypeName returns the default type name for a table, e.g. "line_items" -> "LineItem".
func TypeName(table string) string {
	return Camelize(Singularize(strings.ToLower(table)), true)
}

// TableName returns the conventional table name for a Go type name, e.g. "Person" -> "people".
func TableName(typeName string) string {
	rules.RLock()
	defer rules.RUnlock()
	return schema.NamingStrategy{}.TableName(typeName)
}

// JoinTableName returns the conventional join table for two tables: both names sorted and
// joined with an underscore.
func JoinTableName(a, b string) string {
	names := []string{strings.ToLower(a), strings.ToLower(b)}
	sort.Strings(names)
	return names[0] + "_" + names[1]
}

// OtherTableName guesses the other participant of a join table by removing source from the
// join table name and trimming underscores: ("doctors", "doctors_patients") -> "patients".
// It reports false when source is not part of the join name or equals it.
//
// The guess is only reliable for two-word join names; callers should require explicit
// configuration for anything longer.
func OtherTableName(source, joinTable string) (string, bool) {
	source = strings.ToLower(source)
	joinTable = strings.ToLower(joinTable)
	if source == "" || source == joinTable || !strings.Contains(joinTable, source) {
		return "", false
	}

	other := strings.Trim(strings.Replace(joinTable, source, "", 1), "_")
	if other == "" {
		return "", false
	}
	return other, true
}
