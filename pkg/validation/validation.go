// Package validation checks records before they are saved. Validators are registered per
// table in a Set and report into Errors, which keeps only the first failure per attribute.
//
// The built-in validators are thin adapters over ozzo-validation rules; any ozzo rule can be
// applied to an attribute with Rules.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	ozzo "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/ammar0144/orm4go/pkg/record"
)

// Messages reported by the built-in validators
const (
	MsgMissing    = "value is missing"
	MsgNotNumber  = "value is not a number"
	MsgNotInteger = "value is not an integer"
	MsgFormat     = "value does not match format"
	MsgEmail      = "value is not a valid email address"
)

// Error codes of the errors built from the messages above
const (
	CodeMissing    = "validation_missing"
	CodeNumeric    = "validation_numeric"
	CodeOutOfRange = "validation_out_of_range"
	CodeFormat     = "validation_format"
	CodeCustom     = "validation_custom"
)

// Validator checks one aspect of a record and reports failures into errs
type Validator interface {
	Validate(r *record.Record, errs Errors)
}

// ValidatorFunc adapts a function to Validator
type ValidatorFunc func(r *record.Record, errs Errors)

// Validate implements Validator
func (f ValidatorFunc) Validate(r *record.Record, errs Errors) { f(r, errs) }

// Errors maps attribute names to their first validation failure
type Errors map[string]error

// Add records err for attr unless attr already failed. It reports whether err was kept.
func (e Errors) Add(attr string, err error) bool {
	attr = strings.ToLower(attr)
	if err == nil {
		return false
	}
	if _, ok := e[attr]; ok {
		return false
	}
	e[attr] = err
	return true
}

// AddMessage records a plain message for attr, first failure wins.
func (e Errors) AddMessage(attr, message string) bool {
	return e.Add(attr, ozzo.NewError(CodeCustom, message))
}

// Message returns the failure message of attr, empty when it passed.
func (e Errors) Message(attr string) string {
	err, ok := e[strings.ToLower(attr)]
	if !ok {
		return ""
	}
	if oe, ok := err.(ozzo.Error); ok {
		return oe.Message()
	}
	return err.Error()
}

// Len returns the number of failed attributes.
func (e Errors) Len() int { return len(e) }

// Error renders "attr: message; ..." in attribute order.
func (e Errors) Error() string {
	return ozzo.Errors(e).Error()
}

// MarshalJSON renders the errors as an object of attribute to message.
func (e Errors) MarshalJSON() ([]byte, error) {
	return ozzo.Errors(e).MarshalJSON()
}

// Err returns nil when there are no failures, the errors otherwise.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Set holds the validators of every table. It is safe for concurrent use.
type Set struct {
	mu         sync.RWMutex
	validators map[string][]Validator
}

// NewSet creates an empty validator set
func NewSet() *Set {
	return &Set{validators: make(map[string][]Validator)}
}

// Add registers validators for table, after those already registered.
func (s *Set) Add(table string, validators ...Validator) {
	table = strings.ToLower(table)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validators[table] = append(s.validators[table], validators...)
}

// For returns the validators of table in registration order.
func (s *Set) For(table string) []Validator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Validator(nil), s.validators[strings.ToLower(table)]...)
}

// Validate runs every validator of the record's table and returns the failures.
func (s *Set) Validate(r *record.Record) Errors {
	errs := make(Errors)
	for _, v := range s.For(r.TableName()) {
		v.Validate(r, errs)
	}
	return errs
}

// Presence fails for attributes that are unset, nil or blank text.
func Presence(attrs ...string) Validator {
	rule := ozzo.Required.ErrorObject(ozzo.NewError(CodeMissing, MsgMissing))
	return ValidatorFunc(func(r *record.Record, errs Errors) {
		for _, attr := range attrs {
			v := r.Get(attr)
			if s, ok := v.(string); ok {
				v = strings.TrimSpace(s)
			}
			errs.Add(attr, ozzo.Validate(v, rule))
		}
	})
}

// NumericValidator checks that an attribute is a number within optional bounds
type NumericValidator struct {
	attr        string
	min, max    *float64
	allowNull   bool
	onlyInteger bool
}

// Numeric creates a validator for attr. Without bounds it only checks the value is numeric.
func Numeric(attr string) *NumericValidator {
	return &NumericValidator{attr: attr}
}

// Range checks min <= attr <= max.
func Range(attr string, min, max float64) *NumericValidator {
	return Numeric(attr).Min(min).Max(max)
}

// Min sets the inclusive lower bound.
func (v *NumericValidator) Min(min float64) *NumericValidator {
	v.min = &min
	return v
}

// Max sets the inclusive upper bound.
func (v *NumericValidator) Max(max float64) *NumericValidator {
	v.max = &max
	return v
}

// AllowNull accepts a missing value.
func (v *NumericValidator) AllowNull() *NumericValidator {
	v.allowNull = true
	return v
}

// OnlyInteger rejects fractional values.
func (v *NumericValidator) OnlyInteger() *NumericValidator {
	v.onlyInteger = true
	return v
}

// Validate implements Validator
func (v *NumericValidator) Validate(r *record.Record, errs Errors) {
	raw := r.Get(v.attr)
	if raw == nil || raw == "" {
		if !v.allowNull {
			errs.Add(v.attr, ozzo.NewError(CodeMissing, MsgMissing))
		}
		return
	}
	errs.Add(v.attr, ozzo.Validate(raw, ozzo.By(v.check)))
}

func (v *NumericValidator) check(value any) error {
	f, ok := toFloat(value)
	if !ok {
		return ozzo.NewError(CodeNumeric, MsgNotNumber)
	}
	if v.onlyInteger && f != float64(int64(f)) {
		return ozzo.NewError(CodeNumeric, MsgNotInteger)
	}
	if v.min != nil && f < *v.min {
		return ozzo.NewError(CodeOutOfRange, fmt.Sprintf("value is less than %v", *v.min)).
			SetParams(map[string]any{"min": *v.min})
	}
	if v.max != nil && f > *v.max {
		return ozzo.NewError(CodeOutOfRange, fmt.Sprintf("value is greater than %v", *v.max)).
			SetParams(map[string]any{"max": *v.max})
	}
	return nil
}

var numberPattern = regexp.MustCompile(`^\s*[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?\s*$`)

func toFloat(value any) (float64, bool) {
	if b, ok := value.([]byte); ok {
		value = string(b)
	}
	switch x := value.(type) {
	case string:
		if !numberPattern.MatchString(x) {
			return 0, false
		}
	case bool:
		return 0, false
	}
	f, err := ozzo.ToFloat(value)
	if err == nil {
		return f, true
	}
	if n, err := ozzo.ToInt(value); err == nil {
		return float64(n), true
	}
	if n, err := ozzo.ToUint(value); err == nil {
		return float64(n), true
	}
	var parsed float64
	if _, err := fmt.Sscan(fmt.Sprint(value), &parsed); err == nil {
		return parsed, true
	}
	return 0, false
}

// Format fails when attr is set and its text does not match re.
func Format(attr string, re *regexp.Regexp) Validator {
	return Rules(attr, ozzo.Match(re).ErrorObject(ozzo.NewError(CodeFormat, MsgFormat)))
}

// Regexp is Format with a pattern compiled once. It panics on an invalid pattern.
func Regexp(attr, pattern string) Validator {
	return Format(attr, regexp.MustCompile(pattern))
}

// Email fails when attr is set and is not an email address.
func Email(attr string) Validator {
	return Rules(attr, is.EmailFormat.ErrorObject(ozzo.NewError(CodeFormat, MsgEmail)))
}

// Rules applies arbitrary ozzo rules to the value of attr. Text rules receive the value
// rendered as a string.
func Rules(attr string, rules ...ozzo.Rule) Validator {
	return ValidatorFunc(func(r *record.Record, errs Errors) {
		var v any
		if r.Get(attr) != nil {
			v = r.GetString(attr)
		}
		errs.Add(attr, ozzo.Validate(v, rules...))
	})
}

// Func reports the error fn returns for the raw value of attr.
func Func(attr string, fn func(value any) error) Validator {
	return ValidatorFunc(func(r *record.Record, errs Errors) {
		errs.Add(attr, ozzo.Validate(r.Get(attr), ozzo.By(fn)))
	})
}
