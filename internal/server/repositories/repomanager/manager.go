package repomanager

import (
	"context"
	"database/sql"

	"github.com/uhoapp/authkit/internal/dbx"
	"github.com/uhoapp/authkit/internal/server/repositories/apikeys"
	"github.com/uhoapp/authkit/internal/server/repositories/refreshtokens"
	"github.com/uhoapp/authkit/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DB handle or a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	APIKeys(db dbx.DBTX) apikeys.Repository
}
