package property

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mslinn/bm-console/pkg/apierr"
)

var (
	deferredRefPattern = regexp.MustCompile(`^\$\{[a-zA-Z][a-zA-Z.]*\}$`)
	decimalPattern     = regexp.MustCompile(`^[-+]?[0-9]*\.?[0-9]+$`)

	numberLiteral   = regexp.MustCompile(`^[-+]?(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][-+]?[0-9]+)?$`)
	radixLiteral    = regexp.MustCompile(`^0(?:[xX][0-9a-fA-F]+|[oO][0-7]+|[bB][01]+)$`)
	infinityLiteral = regexp.MustCompile(`^[-+]?Infinity$`)
	floatPrefix     = regexp.MustCompile(`^[-+]?(?:Infinity|[0-9]+\.?[0-9]*(?:[eE][-+]?[0-9]+)?|\.[0-9]+(?:[eE][-+]?[0-9]+)?)`)
	intPrefix       = regexp.MustCompile(`^[-+]?[0-9]+`)
)

// Result is the outcome of validating one property
type Result struct {
	Fail    bool
	Message string
	// ConfigError marks a defect in the server-declared metadata (missing or
	// unknown type, unknown validation strategy, unusable regex or choice)
	// that no user input can fix.
	ConfigError bool
}

// OK reports whether the value is acceptable
func (r Result) OK() bool { return !r.Fail }

// Err returns nil for a passing result, or a *ValidationError
func (r Result) Err(name string) error {
	if !r.Fail {
		return nil
	}
	return &ValidationError{Property: name, Message: r.Message, Config: r.ConfigError}
}

// ValidationError reports a rejected property value
type ValidationError struct {
	Property string
	Message  string
	Config   bool
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return apierr.ErrInvalid }

func pass() Result { return Result{} }

func fail(format string, args ...interface{}) Result {
	return Result{Fail: true, Message: fmt.Sprintf(format, args...)}
}

func configFail(format string, args ...interface{}) Result {
	return Result{Fail: true, Message: fmt.Sprintf(format, args...), ConfigError: true}
}

// Validate decides whether the current value of d is legal. It only reads
// d; use Apply or ValidateInPlace to record the outcome on the descriptor.
// The first failing check determines the message.
func Validate(d *Descriptor) Result {
	choiceChecked := false
	if d.HasChoice() {
		choiceChecked = true
		if r := checkChoice(d); r.Fail {
			return r
		}
	}

	if present(d.Validation) {
		if strings.EqualFold(strings.TrimSpace(*d.Validation), "type") {
			return checkType(d)
		}
		return configFail("Internal error: unknown validation type '%s'", *d.Validation)
	}
	if !choiceChecked {
		return checkType(d)
	}
	return pass()
}

// Apply records r on the descriptor, replacing any earlier outcome
func (d *Descriptor) Apply(r Result) {
	d.ValidationFail = r.Fail
	d.ValidationMessage = r.Message
}

// ValidateInPlace resets the validation outputs of d, validates it and
// records the result.
func ValidateInPlace(d *Descriptor) Result {
	d.ValidationFail = false
	d.ValidationMessage = ""
	r := Validate(d)
	d.Apply(r)
	return r
}

// IsDeferredReference reports whether v is a ${other.property} token
func IsDeferredReference(v Value) bool {
	return v.IsString() && deferredRefPattern.MatchString(v.str)
}

// IsEmpty reports whether v is undefined, null or stringifies to ""
func IsEmpty(v Value) bool {
	return !v.IsDefined() || v.IsNull() || v.String() == ""
}

func checkChoice(d *Descriptor) Result {
	choices, err := ParseChoices(d)
	if err != nil {
		return configFail("Internal configuration error: the property '%s' has an invalid choice list: %v", d.DisplayTitle(), err)
	}
	if d.Value.IsDefined() && choices != nil {
		s := d.Value.String()
		for _, c := range choices {
			if c == s {
				return pass()
			}
		}
	}
	if IsDeferredReference(d.Value) || IsEmpty(d.Value) {
		return pass()
	}
	return fail("Please use one of: %s", strings.Join(choices, ","))
}

func checkType(d *Descriptor) Result {
	kind, declared := d.Kind()
	if !declared {
		return configFail("Internal configuration error: the property '%s' has no type!", d.DisplayTitle())
	}
	if !d.Value.IsDefined() {
		return Result{Message: "Undefined value."}
	}
	switch kind {
	case KindString:
		return checkString(d)
	case KindInt:
		return checkInt(d)
	case KindDecimal:
		return checkDecimal(d)
	case KindBoolean:
		return checkBoolean(d)
	}
	return configFail("Internal configuration error: the property '%s' has an unknown 'type': '%s'", d.DisplayTitle(), *d.Type)
}

func checkString(d *Descriptor) Result {
	v := d.Value
	if IsDeferredReference(v) {
		return pass()
	}
	s := v.String()
	length := int64(utf8.RuneCountInString(s))

	var min int64
	if n, ok := parseIntPrefix(d.Min); ok {
		min = n
	}
	if length < min {
		return fail("Please enter at least %d char(s)", min)
	}
	if max, ok := parseIntPrefix(d.Max); ok && length > max {
		return fail("The value entered is too long. Enter max %d char(s)", max)
	}
	if present(d.Regex) {
		re, err := regexp.Compile(`^(?:` + *d.Regex + `)$`)
		if err != nil {
			return configFail("Internal configuration error: the property '%s' has an invalid regular expression '%s'", d.DisplayTitle(), *d.Regex)
		}
		if !re.MatchString(s) {
			return fail("The value entered doesn't match the regular expression '%s'", *d.Regex)
		}
	}
	if !v.IsString() && min > 0 {
		return fail("Please enter a string value")
	}
	return pass()
}

func checkInt(d *Descriptor) Result {
	v := d.Value
	if IsDeferredReference(v) {
		return pass()
	}
	s := v.String()
	if !v.IsNumber() && !(v.IsString() && s != "") {
		return fail("Please enter an integer value (got %s).", v.TypeName())
	}
	n, ok := toNumber(s)
	if !ok || math.IsInf(n, 0) || n != math.Trunc(n) {
		return fail("Please enter an integer value (got %s '%s').", v.TypeName(), s)
	}
	if min, ok := parseIntPrefix(d.Min); ok && n < float64(min) {
		return fail("The value entered is too small, min. value is %s", d.Min.String())
	}
	if max, ok := parseIntPrefix(d.Max); ok && n > float64(max) {
		return fail("The value entered is too large, max. value is %s", d.Max.String())
	}
	return pass()
}

func checkDecimal(d *Descriptor) Result {
	v := d.Value
	if IsDeferredReference(v) {
		return pass()
	}
	s := v.String()
	f, ok := parseFloatPrefix(s)
	if !ok {
		return fail("Please enter a decimal value.")
	}
	if v.IsNumber() || (v.IsString() && s != "") {
		if formatNumber(f) != s && !decimalPattern.MatchString(s) {
			return fail("Please enter a decimal value. ")
		}
	}
	if d.Min.IsDefined() {
		if min, ok := parseFloatPrefix(d.Min.String()); ok && f < min {
			return fail("The value entered is too small, min. value is %s", d.Min.String())
		}
	}
	if d.Max.IsDefined() {
		if max, ok := parseFloatPrefix(d.Max.String()); ok && f > max {
			return fail("The value entered is too large, max. value is %s", d.Max.String())
		}
	}
	return pass()
}

func checkBoolean(d *Descriptor) Result {
	v := d.Value
	if v.IsBool() {
		return pass()
	}
	if v.IsString() {
		switch strings.ToLower(v.str) {
		case "true", "false":
			return pass()
		}
	}
	if IsDeferredReference(v) {
		return pass()
	}
	return fail("Please enter 'true' or 'false'")
}

// toNumber converts a whole string to a number the way a numeric coercion
// does: surrounding blanks are ignored, a blank string is zero, and radix
// prefixes are honoured.
func toNumber(s string) (float64, bool) {
	t := strings.TrimSpace(s)
	switch {
	case t == "":
		return 0, true
	case numberLiteral.MatchString(t):
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil || isRangeErr(err)
	case radixLiteral.MatchString(t):
		n, err := strconv.ParseInt(t, 0, 64)
		return float64(n), err == nil
	case infinityLiteral.MatchString(t):
		if strings.HasPrefix(t, "-") {
			return math.Inf(-1), true
		}
		return math.Inf(1), true
	}
	return 0, false
}

// parseFloatPrefix reads the longest leading decimal literal, ignoring
// anything after it.
func parseFloatPrefix(s string) (float64, bool) {
	m := floatPrefix.FindString(strings.TrimLeft(s, " \t\r\n"))
	if m == "" {
		return 0, false
	}
	if strings.HasSuffix(m, "Infinity") {
		if strings.HasPrefix(m, "-") {
			return math.Inf(-1), true
		}
		return math.Inf(1), true
	}
	f, err := strconv.ParseFloat(m, 64)
	return f, err == nil || isRangeErr(err)
}

// parseIntPrefix reads the leading integer digits of a bound
func parseIntPrefix(v Value) (int64, bool) {
	if !v.IsDefined() || v.IsNull() {
		return 0, false
	}
	m := intPrefix.FindString(strings.TrimLeft(v.String(), " \t\r\n"))
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}
