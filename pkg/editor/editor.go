// Package editor holds the edit state of the properties of one test or test
// run and reconciles local edits with the versions the server returns.
package editor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mslinn/bm-console/pkg/apierr"
	"github.com/mslinn/bm-console/pkg/property"
)

// Ref names the test, or the test run when Run is set, owning the properties
type Ref struct {
	Test string
	Run  string
}

func (r Ref) String() string {
	if r.Run == "" {
		return r.Test
	}
	return r.Test + "." + r.Run
}

// Saver persists one property. A nil value resets the property to its
// default. It returns the stored descriptor, or an error matching
// apierr.ErrConflict when version is stale.
type Saver interface {
	SaveProperty(ctx context.Context, ref Ref, name string, version int, value *property.Value) (*property.Descriptor, error)
}

// Session is the edit state of a property set
type Session struct {
	ref      Ref
	saver    Saver
	readOnly bool
	logger   *zap.SugaredLogger
	props    []*property.Descriptor
}

// NewSession starts editing props, giving undefined values their default.
// A read-only session (a run that has been scheduled) refuses every write.
func NewSession(ref Ref, props []*property.Descriptor, saver Saver, readOnly bool, logger *zap.SugaredLogger) *Session {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	property.ApplyDefaults(props)
	return &Session{ref: ref, saver: saver, readOnly: readOnly, logger: logger, props: props}
}

// Ref returns the owner of the properties
func (s *Session) Ref() Ref { return s.ref }

// ReadOnly reports whether writes are refused
func (s *Session) ReadOnly() bool { return s.readOnly }

// Properties returns the edited descriptors in display order
func (s *Session) Properties() []*property.Descriptor { return s.props }

// Groups partitions the properties for display
func (s *Session) Groups() []property.Group { return property.GroupProperties(s.props) }

// Property returns the descriptor with the given name
func (s *Session) Property(name string) (*property.Descriptor, error) {
	d := property.Find(s.props, name)
	if d == nil {
		return nil, fmt.Errorf("%w: property '%s' of %s", apierr.ErrNotFound, name, s.ref)
	}
	return d, nil
}

// Attention lists the properties that still carry the "--" placeholder
func (s *Session) Attention() []string {
	var msgs []string
	for _, d := range s.props {
		if need, msg := property.NeedsAttention(d); need {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// Begin opens d for editing: an empty value takes the default and the
// starting value is remembered for Cancel.
func (s *Session) Begin(d *property.Descriptor) {
	if property.IsEmpty(d.Value) {
		d.Value = d.Default
	}
	d.CancelValue = d.Value
}

// Cancel abandons an edit, restoring the value seen at Begin
func (s *Session) Cancel(d *property.Descriptor) {
	d.Value = d.CancelValue
	d.ValidationFail = false
	d.ValidationMessage = ""
}

// Check validates d in place. Metadata defects are logged since no user
// input can fix them.
func (s *Session) Check(d *property.Descriptor) property.Result {
	r := property.ValidateInPlace(d)
	if r.ConfigError {
		s.logger.Errorw("Malformed property definition", "owner", s.ref.String(), "property", d.Name, "error", r.Message)
	}
	return r
}

// Commit validates d and saves it. On success the version and value stored
// by the server are adopted as they are. On failure the edited value stays
// and the validation message explains the error.
func (s *Session) Commit(ctx context.Context, d *property.Descriptor) error {
	if s.readOnly {
		return fmt.Errorf("%w: %s can no longer be edited", apierr.ErrReadOnly, s.ref)
	}
	if r := s.Check(d); r.Fail {
		return r.Err(d.Name)
	}

	value := d.Value
	saved, err := s.saver.SaveProperty(ctx, s.ref, d.Name, d.Version, &value)
	if err != nil {
		s.fail(d, err)
		return err
	}
	s.adopt(d, saved)
	return nil
}

// Reset restores the default of d on the server and adopts the result
func (s *Session) Reset(ctx context.Context, d *property.Descriptor) error {
	if s.readOnly {
		return fmt.Errorf("%w: %s can no longer be edited", apierr.ErrReadOnly, s.ref)
	}

	saved, err := s.saver.SaveProperty(ctx, s.ref, d.Name, d.Version, nil)
	if err != nil {
		s.fail(d, err)
		return err
	}
	s.adopt(d, saved)
	s.Begin(d)
	return nil
}

// Replace swaps in freshly loaded descriptors, e.g. after a conflict
func (s *Session) Replace(props []*property.Descriptor) {
	property.ApplyDefaults(props)
	s.props = props
}

func (s *Session) adopt(d *property.Descriptor, saved *property.Descriptor) {
	d.Version = saved.Version
	d.Value = saved.Value
	d.Origin = saved.Origin
	d.CancelValue = d.Value
	d.ValidationFail = false
	d.ValidationMessage = ""
	s.logger.Debugw("Property saved", "owner", s.ref.String(), "property", d.Name, "version", d.Version)
}

func (s *Session) fail(d *property.Descriptor, err error) {
	d.ValidationFail = true
	var ve *property.ValidationError
	var se *apierr.StatusError
	switch {
	case errors.As(err, &ve):
		d.ValidationMessage = ve.Message
	case errors.As(err, &se) && se.Reason == apierr.ReasonInvalid:
		// rejected by the server's own validation
		d.ValidationMessage = se.Detail
	case errors.Is(err, apierr.ErrConflict):
		d.ValidationMessage = apierr.ErrConflict.Error()
	default:
		d.ValidationMessage = err.Error()
	}
	s.logger.Warnw("Property not saved", "owner", s.ref.String(), "property", d.Name, "version", d.Version, "error", err)
}
