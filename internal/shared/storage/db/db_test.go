package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pingFailure is the error the stub driver's ping returns, if any.
var pingFailure struct {
	mu  sync.Mutex
	err error
}

func setPingFailure(err error) {
	pingFailure.mu.Lock()
	pingFailure.err = err
	pingFailure.mu.Unlock()
}

type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return stubConn{}, nil }

type stubConn struct{}

func (stubConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (stubConn) Close() error                        { return nil }
func (stubConn) Begin() (driver.Tx, error)           { return nil, driver.ErrSkip }

func (stubConn) Ping(context.Context) error {
	pingFailure.mu.Lock()
	defer pingFailure.mu.Unlock()
	return pingFailure.err
}

var registerOnce sync.Once

// useStubDriver routes Connect to an in-process driver whose ping fails while
// fail is set.
func useStubDriver(t *testing.T) (fail func(error)) {
	t.Helper()
	registerOnce.Do(func() {
		sql.Register("dbstub", stubDriver{})
	})
	setPingFailure(nil)
	prev := openDB
	openDB = func(_, dsn string) (*sql.DB, error) {
		return sql.Open("dbstub", dsn)
	}
	t.Cleanup(func() {
		openDB = prev
		setPingFailure(nil)
	})
	return setPingFailure
}

func resetShared(t *testing.T) {
	t.Helper()
	shared.mu.Lock()
	shared.db = nil
	shared.mu.Unlock()
}

func TestConnectRejectsEmptyURL(t *testing.T) {
	_, err := Connect(context.Background(), "  ", PoolConfigFor(ProfileServer))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnavailable)
}

func TestConnectClassifiesUnreachableDatabase(t *testing.T) {
	fail := useStubDriver(t)
	fail(errors.New("connection refused"))

	_, err := Connect(context.Background(), "postgres://db/resumes", PoolConfigFor(ProfileServer))
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestSharedReturnsSamePool(t *testing.T) {
	useStubDriver(t)
	resetShared(t)

	db1, err := Shared(context.Background(), "postgres://db/resumes", PoolConfigFor(ProfileLambda))
	require.NoError(t, err)
	db2, err := Shared(context.Background(), "postgres://db/resumes", PoolConfigFor(ProfileLambda))
	require.NoError(t, err)
	require.Same(t, db1, db2)
}

func TestSharedConnectsAgainAfterFailure(t *testing.T) {
	fail := useStubDriver(t)
	resetShared(t)

	fail(errors.New("connection refused"))
	_, err := Shared(context.Background(), "postgres://db/resumes", PoolConfigFor(ProfileLambda))
	require.ErrorIs(t, err, ErrUnavailable)

	fail(nil)
	db, err := Shared(context.Background(), "postgres://db/resumes", PoolConfigFor(ProfileLambda))
	require.NoError(t, err)
	require.NotNil(t, db)
}

func TestPoolConfigForAppliesOverrides(t *testing.T) {
	useStubDriver(t)
	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("DB_MAX_IDLE_CONNS", "3")
	t.Setenv("DB_CONN_MAX_LIFETIME", "20m")
	t.Setenv("DB_CONN_MAX_IDLE_TIME", "45s")
	t.Setenv("DB_PING_TIMEOUT", "1s")

	pool := PoolConfigFor(ProfileServer)
	require.Equal(t, PoolConfig{
		MaxOpen:     7,
		MaxIdle:     3,
		MaxLifetime: 20 * time.Minute,
		MaxIdleTime: 45 * time.Second,
		PingTimeout: time.Second,
	}, pool)

	db, err := Connect(context.Background(), "postgres://db/resumes", pool)
	require.NoError(t, err)
	defer db.Close()
	require.Equal(t, 7, db.Stats().MaxOpenConnections)
}

func TestPoolConfigForIgnoresGarbage(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "lots")
	t.Setenv("DB_PING_TIMEOUT", "soon")

	require.Equal(t, defaults[ProfileLambda], PoolConfigFor(ProfileLambda))
}

func TestPoolConfigForUnknownProfile(t *testing.T) {
	require.Equal(t, defaults[ProfileServer], PoolConfigFor("batch"))
}

func TestRunMigrationsNilDatabase(t *testing.T) {
	require.NoError(t, RunMigrations(context.Background(), nil))
}
