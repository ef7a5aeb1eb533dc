package migrations

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecutor struct {
	applied []string
	err     error
}

func (r *recordingExecutor) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	r.applied = append(r.applied, sql)
	return pgconn.CommandTag{}, nil
}

func TestRunPostgresMigrationsAppliesEmbeddedFiles(t *testing.T) {
	exec := &recordingExecutor{}

	require.NoError(t, RunPostgresMigrations(context.Background(), exec))
	require.NotEmpty(t, exec.applied)

	assert.Contains(t, exec.applied[0], "CREATE TABLE IF NOT EXISTS factories")
	assert.Contains(t, exec.applied[0], "CREATE TABLE IF NOT EXISTS cycle_swaps")
}

func TestRunPostgresMigrationsStopsOnExecError(t *testing.T) {
	boom := errors.New("boom")
	exec := &recordingExecutor{err: boom}

	err := RunPostgresMigrations(context.Background(), exec)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "001_init.sql")
}
