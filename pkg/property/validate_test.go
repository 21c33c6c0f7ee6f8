package property

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mslinn/bm-console/pkg/apierr"
)

func typed(kind string, value Value) *Descriptor {
	return &Descriptor{Name: "p", Title: "P", Type: StringPtr(kind), Value: value}
}

func TestValidateScenarios(t *testing.T) {
	tests := []struct {
		name    string
		prop    *Descriptor
		wantOK  bool
		wantMsg string
	}{
		{
			name:   "int within bounds",
			prop:   &Descriptor{Type: StringPtr("int"), Min: NumberValue(1), Max: NumberValue(10), Value: StringValue("5")},
			wantOK: true,
		},
		{
			name:    "int above max",
			prop:    &Descriptor{Type: StringPtr("int"), Min: NumberValue(1), Max: NumberValue(10), Value: StringValue("15")},
			wantMsg: "The value entered is too large, max. value is 10",
		},
		{
			name:    "decimal not a number",
			prop:    &Descriptor{Type: StringPtr("decimal"), Value: StringValue("abc")},
			wantMsg: "Please enter a decimal value.",
		},
		{
			name:   "boolean mixed case",
			prop:   &Descriptor{Type: StringPtr("boolean"), Value: StringValue("True")},
			wantOK: true,
		},
		{
			name:    "choice without validation override",
			prop:    &Descriptor{Choice: StringPtr(`["A","B"]`), Value: StringValue("C")},
			wantMsg: "Please use one of: A,B",
		},
		{
			name:    "choice failure reported before type failure",
			prop:    &Descriptor{Type: StringPtr("int"), Choice: StringPtr(`["A","B"]`), Validation: StringPtr("type"), Value: StringValue("abc")},
			wantMsg: "Please use one of: A,B",
		},
		{
			name:    "choice failure reported before range failure",
			prop:    &Descriptor{Type: StringPtr("int"), Max: NumberValue(10), Choice: StringPtr(`["1","2"]`), Validation: StringPtr("type"), Value: StringValue("50")},
			wantMsg: "Please use one of: 1,2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Validate(tt.prop)
			assert.Equal(t, tt.wantOK, r.OK())
			if !tt.wantOK {
				assert.Equal(t, tt.wantMsg, r.Message)
			}
		})
	}
}

func TestDeferredReferenceAlwaysPasses(t *testing.T) {
	ref := StringValue("${other.property}")
	props := []*Descriptor{
		{Type: StringPtr("string"), Value: ref, Min: NumberValue(50)},
		{Type: StringPtr("string"), Value: ref, Max: NumberValue(2)},
		{Type: StringPtr("string"), Value: ref, Regex: StringPtr("[0-9]+")},
		{Type: StringPtr("int"), Value: ref, Min: NumberValue(1)},
		{Type: StringPtr("decimal"), Value: ref, Max: NumberValue(0.5)},
		{Type: StringPtr("boolean"), Value: ref},
		{Type: StringPtr("int"), Value: ref, Choice: StringPtr(`["1","2"]`), Validation: StringPtr("type")},
		{Choice: StringPtr(`["A","B"]`), Value: ref},
	}
	for _, p := range props {
		r := ValidateInPlace(p)
		assert.False(t, p.ValidationFail, "type=%v", p.Type)
		assert.True(t, r.OK())
	}
}

func TestIsDeferredReference(t *testing.T) {
	assert.True(t, IsDeferredReference(StringValue("${a}")))
	assert.True(t, IsDeferredReference(StringValue("${mongo.test.host}")))
	assert.False(t, IsDeferredReference(StringValue("${1abc}")))
	assert.False(t, IsDeferredReference(StringValue("x${a.b}")))
	assert.False(t, IsDeferredReference(StringValue("${a.b")))
	assert.False(t, IsDeferredReference(Undefined))
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(Undefined))
	assert.True(t, IsEmpty(NullValue()))
	assert.True(t, IsEmpty(StringValue("")))
	assert.False(t, IsEmpty(StringValue(" ")))
	assert.False(t, IsEmpty(NumberValue(0)))
	assert.False(t, IsEmpty(BoolValue(false)))
}

func TestStringCheck(t *testing.T) {
	tests := []struct {
		name    string
		prop    *Descriptor
		wantMsg string
	}{
		{"no constraints", &Descriptor{Value: StringValue("")}, ""},
		{"too short", &Descriptor{Min: NumberValue(3), Value: StringValue("ab")}, "Please enter at least 3 char(s)"},
		{"exactly min", &Descriptor{Min: StringValue("2"), Value: StringValue("ab")}, ""},
		{"too long", &Descriptor{Max: NumberValue(3), Value: StringValue("abcd")}, "The value entered is too long. Enter max 3 char(s)"},
		{"exactly max", &Descriptor{Max: NumberValue(4), Value: StringValue("abcd")}, ""},
		{"counts characters not bytes", &Descriptor{Max: NumberValue(3), Value: StringValue("äöü")}, ""},
		{"regex full match", &Descriptor{Regex: StringPtr("[a-z]+"), Value: StringValue("abc")}, ""},
		{"regex partial match fails", &Descriptor{Regex: StringPtr("[a-z]+"), Value: StringValue("abc1")}, "The value entered doesn't match the regular expression '[a-z]+'"},
		{"regex alternation anchored", &Descriptor{Regex: StringPtr("a|b"), Value: StringValue("ab")}, "The value entered doesn't match the regular expression 'a|b'"},
		{"number with min", &Descriptor{Min: NumberValue(1), Value: NumberValue(42)}, "Please enter a string value"},
		{"number without min", &Descriptor{Value: NumberValue(42)}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prop.Type = StringPtr("String")
			r := Validate(tt.prop)
			assert.Equal(t, tt.wantMsg, r.Message)
			assert.Equal(t, tt.wantMsg != "", r.Fail)
			assert.False(t, r.ConfigError)
		})
	}
}

func TestStringCheckInvalidRegexIsConfigError(t *testing.T) {
	p := typed("string", StringValue("abc"))
	p.Regex = StringPtr("(unclosed")
	r := Validate(p)
	assert.True(t, r.Fail)
	assert.True(t, r.ConfigError)
}

func TestIntCheck(t *testing.T) {
	tests := []struct {
		name   string
		value  Value
		min    Value
		max    Value
		wantOK bool
	}{
		{"numeric string", StringValue("7"), Undefined, Undefined, true},
		{"native number", NumberValue(7), Undefined, Undefined, true},
		{"whole decimal string", StringValue("5.0"), Undefined, Undefined, true},
		{"negative", StringValue("-3"), Undefined, Undefined, true},
		{"fraction", StringValue("5.5"), Undefined, Undefined, false},
		{"native fraction", NumberValue(0.1), Undefined, Undefined, false},
		{"letters", StringValue("abc"), Undefined, Undefined, false},
		{"empty string", StringValue(""), Undefined, Undefined, false},
		{"null", NullValue(), Undefined, Undefined, false},
		{"boolean", BoolValue(true), Undefined, Undefined, false},
		{"at min", StringValue("1"), NumberValue(1), NumberValue(10), true},
		{"at max", StringValue("10"), NumberValue(1), NumberValue(10), true},
		{"below min", StringValue("0"), NumberValue(1), NumberValue(10), false},
		{"above max", StringValue("11"), NumberValue(1), NumberValue(10), false},
		{"string bounds", StringValue("11"), StringValue("1"), StringValue("10"), false},
		{"unparseable bound ignored", StringValue("11"), StringValue("x"), StringValue("y"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := typed("INT", tt.value)
			p.Min, p.Max = tt.min, tt.max
			r := Validate(p)
			assert.Equal(t, tt.wantOK, r.OK(), r.Message)
		})
	}
}

func TestIntBoundMessages(t *testing.T) {
	p := typed("int", StringValue("0"))
	p.Min = NumberValue(1)
	assert.Equal(t, "The value entered is too small, min. value is 1", Validate(p).Message)
}

func TestDecimalCheck(t *testing.T) {
	tests := []struct {
		name    string
		value   Value
		min     Value
		max     Value
		wantMsg string
	}{
		{"plain", StringValue("1.5"), Undefined, Undefined, ""},
		{"native", NumberValue(2.25), Undefined, Undefined, ""},
		{"trailing zero", StringValue("1.50"), Undefined, Undefined, ""},
		{"leading dot", StringValue(".5"), Undefined, Undefined, ""},
		{"signed", StringValue("-0.5"), Undefined, Undefined, ""},
		{"integer", StringValue("3"), Undefined, Undefined, ""},
		{"letters", StringValue("abc"), Undefined, Undefined, "Please enter a decimal value."},
		{"empty", StringValue(""), Undefined, Undefined, "Please enter a decimal value."},
		{"trailing garbage", StringValue("1.5abc"), Undefined, Undefined, "Please enter a decimal value. "},
		{"below min", StringValue("0.4"), NumberValue(0.5), Undefined, "The value entered is too small, min. value is 0.5"},
		{"above max", StringValue("2.5"), Undefined, StringValue("2.0"), "The value entered is too large, max. value is 2.0"},
		{"within bounds", StringValue("1.0"), NumberValue(0.5), NumberValue(2), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := typed("decimal", tt.value)
			p.Min, p.Max = tt.min, tt.max
			r := Validate(p)
			assert.Equal(t, tt.wantMsg, r.Message)
			assert.Equal(t, tt.wantMsg != "", r.Fail)
		})
	}
}

func TestBooleanCheck(t *testing.T) {
	accepted := []Value{BoolValue(true), BoolValue(false), StringValue("true"), StringValue("FALSE"), StringValue("True"), StringValue("${a.b}")}
	for _, v := range accepted {
		assert.True(t, Validate(typed("boolean", v)).OK(), v.String())
	}
	rejected := []Value{StringValue("yes"), StringValue("1"), NumberValue(1), StringValue(""), NullValue()}
	for _, v := range rejected {
		r := Validate(typed("boolean", v))
		assert.True(t, r.Fail, v.String())
		assert.Equal(t, "Please enter 'true' or 'false'", r.Message)
	}
}

func TestTypeDispatchErrors(t *testing.T) {
	noType := &Descriptor{Name: "users", Title: "Users", Value: StringValue("x")}
	r := Validate(noType)
	assert.True(t, r.Fail)
	assert.True(t, r.ConfigError)
	assert.Equal(t, "Internal configuration error: the property 'Users' has no type!", r.Message)

	unknown := typed("float", StringValue("1"))
	r = Validate(unknown)
	assert.True(t, r.ConfigError)
	assert.Equal(t, "Internal configuration error: the property 'P' has an unknown 'type': 'float'", r.Message)

	undefined := typed("int", Undefined)
	r = Validate(undefined)
	assert.False(t, r.Fail)
	assert.Equal(t, "Undefined value.", r.Message)
}

func TestValidationStrategy(t *testing.T) {
	p := typed("int", StringValue("abc"))
	p.Validation = StringPtr("TYPE")
	assert.True(t, Validate(p).Fail)

	p.Value = StringValue("4")
	assert.True(t, Validate(p).OK())

	p.Validation = StringPtr("host")
	r := Validate(p)
	assert.True(t, r.ConfigError)
	assert.Equal(t, "Internal error: unknown validation type 'host'", r.Message)
}

func TestChoiceCheck(t *testing.T) {
	p := &Descriptor{Type: StringPtr("int"), Choice: StringPtr(`["1","2","3"]`), Value: StringValue("2")}
	assert.True(t, Validate(p).OK())

	// choice satisfied: the type check is skipped without a validation override
	p.Type = StringPtr("boolean")
	assert.True(t, Validate(p).OK())

	// with the override both checks run
	p.Validation = StringPtr("type")
	assert.Equal(t, "Please enter 'true' or 'false'", Validate(p).Message)

	empty := &Descriptor{Choice: StringPtr(`["A"]`), Value: StringValue("")}
	assert.True(t, Validate(empty).OK())

	numeric := &Descriptor{Choice: StringPtr(`[1, 2]`), Value: NumberValue(2)}
	assert.True(t, Validate(numeric).OK())

	broken := &Descriptor{Choice: StringPtr(`{"a":1}`), Value: StringValue("a")}
	r := Validate(broken)
	assert.True(t, r.ConfigError)
}

func TestValidateInPlaceResetsOutputs(t *testing.T) {
	p := typed("int", StringValue("abc"))
	ValidateInPlace(p)
	require.True(t, p.ValidationFail)
	require.NotEmpty(t, p.ValidationMessage)

	p.Value = StringValue("3")
	ValidateInPlace(p)
	assert.False(t, p.ValidationFail)
	assert.Empty(t, p.ValidationMessage)
}

func TestResultErr(t *testing.T) {
	assert.NoError(t, Result{}.Err("p"))
	err := Validate(typed("boolean", StringValue("maybe"))).Err("p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.ErrInvalid))
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "p", ve.Property)
}
