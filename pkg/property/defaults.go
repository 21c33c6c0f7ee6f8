package property

import (
	"fmt"
	"strings"
)

// placeholder marks a default that must be replaced before a run
const placeholder = "--"

// ApplyDefaults gives every property without a value its default, so that
// no editable property is left undefined.
func ApplyDefaults(ds []*Descriptor) {
	for _, d := range ds {
		if !d.Value.IsDefined() {
			d.Value = d.Default
		}
	}
}

// EffectiveValue returns the value, or the default when the value is empty
func (d *Descriptor) EffectiveValue() Value {
	if IsEmpty(d.Value) {
		return d.Default
	}
	return d.Value
}

// NeedsAttention reports whether the property still carries the "--"
// placeholder and must be set before the run can be scheduled.
func NeedsAttention(d *Descriptor) (bool, string) {
	v := d.Value
	if !v.IsDefined() {
		v = d.Default
	}
	if !strings.Contains(v.String(), placeholder) {
		return false, ""
	}
	return true, fmt.Sprintf("* {%s / %s}: A value must be set.", d.Group, d.Name)
}
