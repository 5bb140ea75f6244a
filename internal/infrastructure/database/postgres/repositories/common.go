// Package repositories holds the PostgreSQL implementations of the domain
// repository contracts.
package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
)

// DB abstracts the pgx pool so repositories can run against a pool, a
// transaction, or a test double.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// idsToStrings converts domain ids to the plain strings pgx encodes into
// UUID[] columns.
func idsToStrings(ids []common.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// stringsToIDs converts scanned UUID[] values back to domain ids.
func stringsToIDs(ss []string) []common.ID {
	out := make([]common.ID, len(ss))
	for i, s := range ss {
		out[i] = common.ID(s)
	}
	return out
}
