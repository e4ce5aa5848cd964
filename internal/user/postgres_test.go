package user

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/clients"
)

// fakeRow scans a fixed Info or returns err.
type fakeRow struct {
	info Info
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.info.UID
	*dest[1].(*string) = r.info.Name
	*dest[2].(*string) = r.info.Email
	return nil
}

// fakeDB keeps users in a map and records every Exec.
type fakeDB struct {
	mu      sync.Mutex
	users   map[string]Info
	execs   []string
	queryEr error
	execErr error
}

func newFakeDB() *fakeDB { return &fakeDB{users: map[string]Info{}} }

func (f *fakeDB) Ping(context.Context) error { return nil }
func (f *fakeDB) Close()                     {}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryEr != nil {
		return fakeRow{err: f.queryEr}
	}
	info, ok := f.users[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{info: info}
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	f.execs = append(f.execs, sql)
	if sql == upsertUser {
		uid := args[0].(string)
		f.users[uid] = Info{UID: uid, Name: args[1].(string), Email: args[2].(string)}
	}
	return pgconn.CommandTag{}, nil
}

type staticSource struct {
	db  clients.DB
	err error
}

func (s staticSource) DB(context.Context) (clients.DB, error) { return s.db, s.err }

func TestPostgresDirectory_SeedAndLookup(t *testing.T) {
	t.Parallel()

	db := newFakeDB()
	d := NewPostgresDirectory(staticSource{db: db}, clients.NewCircuitBreaker("test-pg"))
	ctx := context.Background()

	require.NoError(t, d.Seed(ctx, []Info{ParseInfo("42", "Ada <ada@example.com>")}))
	assert.Equal(t, Schema, db.execs[0])

	info, err := d.Lookup(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, Info{UID: "42", Name: "Ada", Email: "ada@example.com"}, info)
}

func TestPostgresDirectory_NotFoundDoesNotTripBreaker(t *testing.T) {
	t.Parallel()

	cb := clients.NewCircuitBreaker("test-pg-miss")
	d := NewPostgresDirectory(staticSource{db: newFakeDB()}, cb)

	for i := 0; i < 5; i++ {
		_, err := d.Lookup(context.Background(), "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	}
	assert.Zero(t, cb.Counts().ConsecutiveFailures)
}

func TestPostgresDirectory_Errors(t *testing.T) {
	t.Parallel()

	t.Run("query error", func(t *testing.T) {
		t.Parallel()
		db := newFakeDB()
		db.queryEr = errors.New("conn reset")
		d := NewPostgresDirectory(staticSource{db: db}, clients.NewCircuitBreaker("q"))

		_, err := d.Lookup(context.Background(), "42")
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrNotFound))
		assert.Contains(t, err.Error(), "conn reset")
	})

	t.Run("connect error", func(t *testing.T) {
		t.Parallel()
		d := NewPostgresDirectory(staticSource{err: errors.New("dial")}, clients.NewCircuitBreaker("c"))
		assert.Error(t, d.EnsureSchema(context.Background()))
	})

	t.Run("exec error", func(t *testing.T) {
		t.Parallel()
		db := newFakeDB()
		db.execErr = errors.New("permission denied")
		d := NewPostgresDirectory(staticSource{db: db}, clients.NewCircuitBreaker("e"))
		err := d.Upsert(context.Background(), Info{UID: "1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "upsert user 1")
	})
}
