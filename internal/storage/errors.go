package storage

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/thinkrealty/leadflow/internal/model"
)

// isCapacityViolation reports whether err is the database rejecting a
// workload increment past the per-agent cap. The agents table enforces the
// cap with a CHECK constraint and a trigger; either rejection surfaces to
// callers as model.ErrAgentOverloaded.
func isCapacityViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code == "23514" && strings.Contains(pgErr.ConstraintName, "active_leads_count") {
		return true
	}
	// Raised by the capacity trigger with our message.
	return pgErr.Code == "P0001" && strings.Contains(pgErr.Message, "maximum capacity")
}

// translateCapacity maps capacity violations to the sentinel and leaves
// every other error untouched.
func translateCapacity(err error) error {
	if isCapacityViolation(err) {
		return model.ErrAgentOverloaded
	}
	return err
}
