package property

import "strings"

// Kind is the declared type of a property
type Kind int

const (
	KindUnknown Kind = iota
	KindString
	KindInt
	KindDecimal
	KindBoolean
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindBoolean:
		return "boolean"
	}
	return "unknown"
}

// ParseKind maps a declared type name (any case) to its Kind
func ParseKind(name string) Kind {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "string":
		return KindString
	case "int":
		return KindInt
	case "decimal":
		return KindDecimal
	case "boolean":
		return KindBoolean
	}
	return KindUnknown
}

// Origin records where a property value was last set
type Origin string

const (
	OriginDefaults Origin = "defaults"
	OriginTest     Origin = "test"
	OriginRun      Origin = "run"
)

// Descriptor describes one configurable parameter of a test or test run.
//
// Optional metadata is held in pointers (or undefined Values) so that an
// absent field can be told apart from an empty one.
type Descriptor struct {
	Name        string  `json:"name" yaml:"name"`
	Title       string  `json:"title,omitempty" yaml:"title,omitempty"`
	Group       string  `json:"group,omitempty" yaml:"group,omitempty"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Type        *string `json:"type,omitempty" yaml:"type,omitempty"`
	Validation  *string `json:"validation,omitempty" yaml:"validation,omitempty"`
	Value       Value   `json:"value,omitzero" yaml:"value,omitempty"`
	Default     Value   `json:"default,omitzero" yaml:"default,omitempty"`
	Min         Value   `json:"min,omitzero" yaml:"min,omitempty"`
	Max         Value   `json:"max,omitzero" yaml:"max,omitempty"`
	Regex       *string `json:"regex,omitempty" yaml:"regex,omitempty"`
	Choice      *string `json:"choice,omitempty" yaml:"choice,omitempty"`
	Hide        bool    `json:"hide,omitempty" yaml:"hide,omitempty"`
	Mask        bool    `json:"mask,omitempty" yaml:"mask,omitempty"`
	Version     int     `json:"version" yaml:"-"`
	Origin      Origin  `json:"origin,omitempty" yaml:"-"`

	// Outputs of validation and edit state; never inputs to Validate.
	ValidationFail    bool   `json:"validationFail,omitempty" yaml:"-"`
	ValidationMessage string `json:"validationMessage,omitempty" yaml:"-"`
	CancelValue       Value  `json:"-" yaml:"-"`
}

// Kind returns the declared kind and whether a type was declared at all
func (d *Descriptor) Kind() (Kind, bool) {
	if !present(d.Type) {
		return KindUnknown, false
	}
	return ParseKind(*d.Type), true
}

// DisplayTitle returns the title, falling back to the name
func (d *Descriptor) DisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Name
}

// HasChoice reports whether a choice collection is declared
func (d *Descriptor) HasChoice() bool {
	return present(d.Choice)
}

// Clone returns a deep copy
func (d *Descriptor) Clone() *Descriptor {
	c := *d
	c.Type = clonePtr(d.Type)
	c.Validation = clonePtr(d.Validation)
	c.Regex = clonePtr(d.Regex)
	c.Choice = clonePtr(d.Choice)
	return &c
}

// StringPtr is a helper for optional metadata literals
func StringPtr(s string) *string {
	return &s
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// present treats blank metadata the same as absent metadata; the server
// serializes unset optional fields as empty strings.
func present(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}
