package oracle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/koustreak/userfed/internal/database"
	"github.com/koustreak/userfed/internal/dialect"
	"github.com/koustreak/userfed/internal/errs"
)

func TestMapError_NonOracle(t *testing.T) {
	cause := errors.New("dpiConn_create: connection refused")
	got := mapError(cause, "connect failed")
	assert.Equal(t, errs.ErrKindConnectionUnavailable, got.Kind)
	assert.ErrorIs(t, got, cause)
}

func TestUnavailableCodes(t *testing.T) {
	assert.True(t, unavailable[1017], "bad credentials")
	assert.True(t, unavailable[12541], "no listener")
	assert.False(t, unavailable[942], "missing table is a statement error")
	assert.False(t, unavailable[904], "invalid identifier is a statement error")
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, database.Registered(), dialect.DriverOracle)
}
