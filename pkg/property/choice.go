package property

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// SetKind classifies the admissible values of a property
type SetKind int

const (
	// SetFree accepts anything its type check accepts
	SetFree SetKind = iota
	// SetBoolean is the implicit true/false pair of boolean properties
	SetBoolean
	// SetChoice is an explicit choice collection
	SetChoice
)

// ValueSet is the admissible value set offered to a picker
type ValueSet struct {
	Kind   SetKind
	Values []string
}

// ParseChoices decodes the JSON array held in the choice field. It returns
// nil when no choice collection is declared.
func ParseChoices(d *Descriptor) ([]string, error) {
	if !d.HasChoice() {
		return nil, nil
	}
	raw := strings.TrimSpace(*d.Choice)
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("'%s' is not valid JSON", raw)
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("'%s' is not a JSON array", raw)
	}
	choices := []string{}
	parsed.ForEach(func(_, item gjson.Result) bool {
		choices = append(choices, item.String())
		return true
	})
	return choices, nil
}

// Admissible classifies the value set of d. Boolean properties always offer
// true and false; a malformed choice list is treated as unconstrained here
// and reported by Validate.
func Admissible(d *Descriptor) ValueSet {
	if kind, ok := d.Kind(); ok && kind == KindBoolean {
		return ValueSet{Kind: SetBoolean, Values: []string{"true", "false"}}
	}
	choices, err := ParseChoices(d)
	if err == nil && len(choices) > 0 {
		return ValueSet{Kind: SetChoice, Values: choices}
	}
	return ValueSet{Kind: SetFree}
}
