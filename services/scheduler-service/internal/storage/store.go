// Package storage implements the scheduler-service persistence ports on
// Postgres.
package storage

import (
	"errors"

	"github.com/md-rashed-zaman/apptflow/libs/db"
)

var ErrNotFound = errors.New("not found")

// Store is the pgx-backed repository for jobs, rules, templates, billing,
// feedback and customer opt-outs.
type Store struct {
	db db.TxBeginner
}

func New(conn db.TxBeginner) *Store {
	return &Store{db: conn}
}
