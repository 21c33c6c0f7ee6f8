package editor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mslinn/bm-console/pkg/apierr"
	"github.com/mslinn/bm-console/pkg/property"
)

// fakeSaver keeps one stored version per property and bumps it by two so
// tests can tell an adopted version from a locally incremented one
type fakeSaver struct {
	versions map[string]int
	defaults map[string]property.Value
	calls    int
	err      error
}

func (f *fakeSaver) SaveProperty(_ context.Context, ref Ref, name string, version int, value *property.Value) (*property.Descriptor, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.versions[name] != version {
		return nil, fmt.Errorf("%w: %s.%s", apierr.ErrConflict, ref, name)
	}
	f.versions[name] = version + 2
	saved := &property.Descriptor{Name: name, Version: f.versions[name], Default: f.defaults[name], Origin: property.OriginTest}
	if value != nil {
		saved.Value = *value
	}
	return saved, nil
}

func newFixture() (*Session, *fakeSaver, *property.Descriptor) {
	users := &property.Descriptor{
		Name: "users", Group: "Load", Type: property.StringPtr("int"),
		Default: property.StringValue("10"), Max: property.NumberValue(100), Version: 4,
	}
	saver := &fakeSaver{
		versions: map[string]int{"users": 4},
		defaults: map[string]property.Value{"users": property.StringValue("10")},
	}
	s := NewSession(Ref{Test: "load"}, []*property.Descriptor{users}, saver, false, nil)
	return s, saver, users
}

func TestBeginAndCancel(t *testing.T) {
	s, _, users := newFixture()

	s.Begin(users)
	assert.Equal(t, "10", users.Value.String(), "empty value takes the default")

	users.Value = property.StringValue("abc")
	s.Check(users)
	require.True(t, users.ValidationFail)

	s.Cancel(users)
	assert.Equal(t, "10", users.Value.String())
	assert.False(t, users.ValidationFail)
	assert.Empty(t, users.ValidationMessage)
}

func TestCommitAdoptsServerVersion(t *testing.T) {
	s, saver, users := newFixture()
	s.Begin(users)
	users.Value = property.StringValue("50")

	require.NoError(t, s.Commit(context.Background(), users))
	assert.Equal(t, 6, users.Version, "server version adopted verbatim")
	assert.Equal(t, "50", users.Value.String())
	assert.Equal(t, property.OriginTest, users.Origin)
	assert.Equal(t, 1, saver.calls)

	// the adopted version is what the next write sends
	users.Value = property.StringValue("60")
	require.NoError(t, s.Commit(context.Background(), users))
	assert.Equal(t, 8, users.Version)
}

func TestCommitRefusesInvalidValue(t *testing.T) {
	s, saver, users := newFixture()
	users.Value = property.StringValue("500")

	err := s.Commit(context.Background(), users)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.ErrInvalid))
	assert.True(t, users.ValidationFail)
	assert.Equal(t, "The value entered is too large, max. value is 100", users.ValidationMessage)
	assert.Zero(t, saver.calls, "nothing is sent while validation fails")
}

func TestCommitConflictKeepsValue(t *testing.T) {
	s, saver, users := newFixture()
	saver.versions["users"] = 9 // someone else saved in the meantime
	users.Value = property.StringValue("42")

	err := s.Commit(context.Background(), users)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.ErrConflict))
	assert.Equal(t, "42", users.Value.String(), "value left as entered")
	assert.Equal(t, 4, users.Version, "no speculative increment")
	assert.True(t, users.ValidationFail)
	assert.Contains(t, users.ValidationMessage, "please reload and retry")
	assert.Equal(t, 1, saver.calls, "conflicts are not retried")
}

func TestCommitFailureMessages(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantIs  error
		wantMsg string
	}{
		{
			name:    "transport",
			err:     errors.New("connection refused"),
			wantMsg: "connection refused",
		},
		{
			name:    "rejected by server validation",
			err:     apierr.FromStatus(http.StatusBadRequest, http.MethodPut, apierr.ReasonInvalid, "The value entered is too large, max. value is 100"),
			wantIs:  apierr.ErrInvalid,
			wantMsg: "The value entered is too large, max. value is 100",
		},
		{
			name:    "server conflict",
			err:     apierr.FromStatus(http.StatusConflict, http.MethodPut, apierr.ReasonConflict, "property 'users' is at version 5"),
			wantIs:  apierr.ErrConflict,
			wantMsg: apierr.ErrConflict.Error(),
		},
		{
			name:    "server failure",
			err:     apierr.FromStatus(http.StatusInternalServerError, http.MethodPut, apierr.ReasonInternal, "disk full"),
			wantMsg: "[500 InternalError] disk full",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, saver, users := newFixture()
			saver.err = tt.err
			users.Value = property.StringValue("42")

			err := s.Commit(context.Background(), users)
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			assert.True(t, users.ValidationFail)
			assert.Equal(t, tt.wantMsg, users.ValidationMessage)
			assert.Equal(t, "42", users.Value.String())
			assert.Equal(t, 4, users.Version)
		})
	}
}

func TestResetAdoptsDefault(t *testing.T) {
	s, _, users := newFixture()
	users.Value = property.StringValue("77")

	require.NoError(t, s.Reset(context.Background(), users))
	assert.Equal(t, 6, users.Version)
	assert.Equal(t, "10", users.Value.String())
	assert.Equal(t, "10", users.CancelValue.String())
}

func TestReadOnlySessionRefusesWrites(t *testing.T) {
	saver := &fakeSaver{versions: map[string]int{}}
	users := &property.Descriptor{Name: "users", Type: property.StringPtr("int"), Value: property.StringValue("1")}
	s := NewSession(Ref{Test: "load", Run: "01"}, []*property.Descriptor{users}, saver, true, nil)

	assert.True(t, errors.Is(s.Commit(context.Background(), users), apierr.ErrReadOnly))
	assert.True(t, errors.Is(s.Reset(context.Background(), users), apierr.ErrReadOnly))
	assert.Zero(t, saver.calls)
	assert.Equal(t, "load.01", s.Ref().String())
}

func TestSessionLookupsAndAttention(t *testing.T) {
	host := &property.Descriptor{Name: "mongo.host", Group: "MongoDB", Default: property.StringValue("--")}
	s, _, users := newFixture()
	s.Replace([]*property.Descriptor{users, host})
	assert.Equal(t, "--", host.Value.String(), "undefined value takes the default")

	d, err := s.Property("mongo.host")
	require.NoError(t, err)
	assert.Same(t, host, d)

	_, err = s.Property("nope")
	assert.True(t, errors.Is(err, apierr.ErrNotFound))

	assert.Equal(t, []string{"* {MongoDB / mongo.host}: A value must be set."}, s.Attention())
	require.Len(t, s.Groups(), 2)
	assert.Equal(t, "Load", s.Groups()[0].Name)
}

func TestCheckFlagsMetadataDefects(t *testing.T) {
	s, _, _ := newFixture()
	broken := &property.Descriptor{Name: "x", Value: property.StringValue("1")}
	r := s.Check(broken)
	assert.True(t, r.ConfigError)
	assert.True(t, broken.ValidationFail)
}
