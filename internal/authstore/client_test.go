package authstore

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassifyFatalMapsAdminShutdownToConnectionLost(t *testing.T) {
	err := &pgconn.PgError{Code: "57P01"}
	assert.Equal(t, "3135", classifyFatal(err))
}

func TestClassifyFatalIgnoresOrdinaryQueryErrors(t *testing.T) {
	err := &pgconn.PgError{Code: "23505"} // unique_violation
	assert.Equal(t, "", classifyFatal(err))
}

func TestClassifyFatalNilIsEmpty(t *testing.T) {
	assert.Equal(t, "", classifyFatal(nil))
}

func TestClassifyFatalNonPgErrorFallsThroughSafeToRetry(t *testing.T) {
	err := errors.New("some generic connection failure")
	// Not a pgconn.PgError and not recognized as safe-to-retry by pgx's
	// own heuristic, so this should not be misclassified as fatal.
	assert.Equal(t, "", classifyFatal(err))
}
