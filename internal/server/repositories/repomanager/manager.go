package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/fieldlog/internal/dbx"
	"github.com/dmitrijs2005/fieldlog/internal/server/repositories/entries"
	"github.com/dmitrijs2005/fieldlog/internal/server/repositories/placements"
)

// RepositoryManager vends repositories bound to a DBTX, so that services can
// run several of them inside one transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Entries(db dbx.DBTX) entries.Repository
	Placements(db dbx.DBTX) placements.Repository
}
