package db

import (
	"github.com/markdave123-py/Ledgerlens/internal/core"
)

// DbClient is the Postgres-backed persistence the services need: the unit
// collection and the document registry share one connection pool.
type DbClient interface {
	core.VectorCollection
	core.DocumentStore
}

var _ DbClient = (*DatabaseClient)(nil)
