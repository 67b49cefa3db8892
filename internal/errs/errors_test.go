package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   func(error) bool
	}{
		{"invalid input", New(ErrKindInvalidInput, "empty url"), IsInvalidInput},
		{"unsupported dialect", New(ErrKindUnsupportedDialect, "jdbc:db2:"), IsUnsupportedDialect},
		{"pool init", Wrap(ErrKindPoolInitialization, "open", errors.New("boom")), IsPoolInitialization},
		{"connection", Wrap(ErrKindConnectionUnavailable, "acquire", errors.New("timeout")), IsConnectionUnavailable},
		{"configuration", New(ErrKindConfiguration, "bad"), IsConfiguration},
		{"not found", New(ErrKindNotFound, "no row"), IsNotFound},
		{"query", New(ErrKindQueryFailed, "syntax"), IsQueryFailed},
		{"wrapped by fmt", fmt.Errorf("outer: %w", New(ErrKindNotFound, "no row")), IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.is(tt.err))
		})
	}
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, ErrKindUnknown, KindOf(nil))
}

func TestError_Message(t *testing.T) {
	err := Wrap(ErrKindConnectionUnavailable, "acquire failed", errors.New("dial tcp: refused"))
	assert.Equal(t, "[connection_unavailable] acquire failed: dial tcp: refused", err.Error())
	assert.Equal(t, "[configuration] bad table", New(ErrKindConfiguration, "bad table").Error())
}

func TestVendor(t *testing.T) {
	inner := Wrap(ErrKindQueryFailed, "relation missing", errors.New("pg")).WithVendor("42P01", 0)
	outer := Wrap(ErrKindConfiguration, "probe failed", inner)

	state, code := Vendor(outer)
	assert.Equal(t, "42P01", state)
	assert.Equal(t, 0, code)
	assert.Equal(t, "42P01", outer.SQLState, "Wrap copies vendor fields")

	state, code = Vendor(errors.New("plain"))
	assert.Empty(t, state)
	assert.Zero(t, code)
}
