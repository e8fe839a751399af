package database_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/clientdesk/internal/config"
	"github.com/digkill/clientdesk/internal/database"
	"github.com/digkill/clientdesk/internal/database/dbtest"
)

func TestMigrateIsRepeatable(t *testing.T) {
	db := dbtest.NewSQLite(t)
	require.NoError(t, database.Migrate(context.Background(), db, config.DriverSQLite))
}

func TestIsDuplicateKeySQLite(t *testing.T) {
	ctx := context.Background()
	db := dbtest.NewSQLite(t)

	const insert = `INSERT INTO assistants (id, email, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)`
	_, err := db.ExecContext(ctx, insert, "a1", "a1@example.com")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, insert, "a1", "other@example.com")
	require.Error(t, err)
	assert.True(t, database.IsDuplicateKey(err), "primary key violation")

	_, err = db.ExecContext(ctx, insert, "a2", "a1@example.com")
	require.Error(t, err)
	assert.True(t, database.IsDuplicateKey(fmt.Errorf("insert assistant: %w", err)), "unique violation, wrapped")
}

func TestIsDuplicateKeyMySQL(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	assert.True(t, database.IsDuplicateKey(fmt.Errorf("insert: %w", dup)))
	assert.False(t, database.IsDuplicateKey(&mysql.MySQLError{Number: 1213}))
	assert.False(t, database.IsDuplicateKey(errors.New("boom")))
	assert.False(t, database.IsDuplicateKey(nil))
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := dbtest.NewSQLite(t)
	sentinel := errors.New("abort")

	err := database.RunInTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO assistants (id, email, created_at) VALUES ('a1', 'a1@example.com', CURRENT_TIMESTAMP)`); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assistants`).Scan(&count))
	assert.Zero(t, count)
}

func TestRunInTxCommits(t *testing.T) {
	ctx := context.Background()
	db := dbtest.NewSQLite(t)

	err := database.RunInTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO assistants (id, email, created_at) VALUES ('a1', 'a1@example.com', CURRENT_TIMESTAMP)`)
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assistants`).Scan(&count))
	assert.Equal(t, 1, count)
}
