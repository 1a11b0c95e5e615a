package resumes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type fixedIDs struct {
	id    string
	calls atomic.Int32
}

func (g *fixedIDs) NewID() (string, error) {
	g.calls.Add(1)
	return g.id, nil
}

type failingIDs struct{}

func (failingIDs) NewID() (string, error) { return "", errors.New("entropy unavailable") }

// flakyStore fails the first n calls of every operation with ErrStoreUnavailable.
type flakyStore struct {
	Store
	mu    sync.Mutex
	fails int
	calls int
}

func (s *flakyStore) fail() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fails {
		return fmt.Errorf("%w: throttled", ErrStoreUnavailable)
	}
	return nil
}

func (s *flakyStore) Get(ctx context.Context, id string) (Resume, error) {
	if err := s.fail(); err != nil {
		return Resume{}, err
	}
	return s.Store.Get(ctx, id)
}

func (s *flakyStore) Scan(ctx context.Context) iter.Seq2[Resume, error] {
	if err := s.fail(); err != nil {
		return func(yield func(Resume, error) bool) { yield(Resume{}, err) }
	}
	return s.Store.Scan(ctx)
}

func newTestService(store Store) *Service {
	svc := NewService(store)
	svc.Retry = RetryPolicy{MaxRetries: MaxStoreRetries, BaseDelay: time.Millisecond}
	svc.Now = func() time.Time { return time.Date(2026, 7, 4, 10, 0, 0, 0, time.UTC) }
	return svc
}

func jsonValue(depth int) *rapid.Generator[any] {
	gens := []*rapid.Generator[any]{
		rapid.Map(rapid.StringMatching(`[ -~]{0,16}`), func(v string) any { return v }),
		rapid.Map(rapid.IntRange(-1_000_000, 1_000_000), func(v int) any { return float64(v) }),
		rapid.Map(rapid.Float64Range(-1e6, 1e6), func(v float64) any { return v }),
		rapid.Map(rapid.Bool(), func(v bool) any { return v }),
		rapid.Just[any](nil),
	}
	if depth > 0 {
		gens = append(gens,
			rapid.Map(rapid.SliceOfN(jsonValue(depth-1), 0, 4), func(v []any) any {
				if v == nil {
					v = []any{}
				}
				return v
			}),
			rapid.Map(jsonObject(depth-1), func(v Document) any { return v }),
		)
	}
	return rapid.OneOf(gens...)
}

func jsonObject(depth int) *rapid.Generator[Document] {
	return rapid.Map(rapid.MapOfN(rapid.StringMatching(`[a-z]{1,8}`), jsonValue(depth), 0, 6), func(v map[string]any) Document {
		if v == nil {
			v = Document{}
		}
		return v
	})
}

func TestServiceCreateGetRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := jsonObject(3).Draw(t, "payload")
		body, err := json.Marshal(doc)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		in, err := ParsePayload(body, "", DefaultMaxPayloadBytes)
		if err != nil {
			t.Fatalf("parse %s: %v", body, err)
		}

		svc := newTestService(NewMemoryStore())
		created, err := svc.Create(context.Background(), in)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if !ValidID(created.ID) {
			t.Fatalf("generated id %q is not valid", created.ID)
		}

		got, err := svc.Get(context.Background(), created.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !reflect.DeepEqual(doc, got.Payload) {
			t.Fatalf("payload = %#v, want %#v", got.Payload, doc)
		}
	})
}

// lostAckStore commits the first create and then reports the store as
// unavailable, as if the response had been lost on the way back.
type lostAckStore struct {
	Store
	mu     sync.Mutex
	puts   int
	failed bool
}

func (s *lostAckStore) Put(ctx context.Context, r Resume, opts PutOptions) (Resume, error) {
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
	stored, err := s.Store.Put(ctx, r, opts)
	if err != nil {
		return Resume{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.failed {
		s.failed = true
		return Resume{}, fmt.Errorf("%w: response lost", ErrStoreUnavailable)
	}
	return stored, nil
}

func countRecords(t *testing.T, store Store) int {
	t.Helper()
	n := 0
	for _, err := range store.Scan(context.Background()) {
		require.NoError(t, err)
		n++
	}
	return n
}

func TestServiceCreateConfirmsWriteAfterLostResponse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("generated id", func(t *testing.T) {
		store := &lostAckStore{Store: NewMemoryStore()}
		created, err := newTestService(store).Create(ctx, Input{Document: Document{"name": "Ada"}})
		require.NoError(t, err)
		require.Equal(t, 1, countRecords(t, store))
		require.Equal(t, 2, store.puts)

		got, err := store.Get(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, created, got)
	})

	t.Run("explicit id", func(t *testing.T) {
		store := &lostAckStore{Store: NewMemoryStore()}
		created, err := newTestService(store).Create(ctx, Input{ID: "ada", Document: Document{"name": "Ada"}})
		require.NoError(t, err)
		require.Equal(t, "ada", created.ID)
		require.Equal(t, int64(1), created.Version)
		require.Equal(t, 1, countRecords(t, store))
	})
}

// takenAfterFailureStore reports the first create as unavailable without
// writing it, and by the retry another writer owns the id.
type takenAfterFailureStore struct {
	Store
	once sync.Once
}

func (s *takenAfterFailureStore) Put(ctx context.Context, r Resume, opts PutOptions) (Resume, error) {
	var failed bool
	s.once.Do(func() {
		failed = true
		other := Resume{ID: r.ID, Payload: Document{"owner": "someone else"}, Version: 1, CreatedAt: r.CreatedAt.Add(-time.Second)}
		_, _ = s.Store.Put(ctx, other, PutOptions{MustNotExist: true})
	})
	if failed {
		return Resume{}, fmt.Errorf("%w: timeout", ErrStoreUnavailable)
	}
	return s.Store.Put(ctx, r, opts)
}

func TestServiceCreateAfterUnconfirmedWriteDoesNotRollNewID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := &takenAfterFailureStore{Store: NewMemoryStore()}
	ids := &fixedIDs{id: "contended"}
	svc := newTestService(store)
	svc.IDs = ids
	_, err := svc.Create(ctx, Input{Document: Document{}})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.Equal(t, int32(1), ids.calls.Load())

	explicit := &takenAfterFailureStore{Store: NewMemoryStore()}
	_, err = newTestService(explicit).Create(ctx, Input{ID: "ada", Document: Document{}})
	require.ErrorIs(t, err, ErrConflict)
}

func TestServiceTimestampsKeepMicrosecondPrecision(t *testing.T) {
	t.Parallel()
	svc := newTestService(NewMemoryStore())
	svc.Now = func() time.Time { return time.Date(2026, 7, 4, 10, 0, 0, 123456789, time.UTC) }

	created, err := svc.Create(context.Background(), Input{Document: Document{}})
	require.NoError(t, err)
	require.Equal(t, 123456000, created.CreatedAt.Nanosecond())
	require.Equal(t, created.CreatedAt, created.UpdatedAt)
}

func TestServiceCreateWithExplicitID(t *testing.T) {
	t.Parallel()
	svc := newTestService(NewMemoryStore())
	ctx := context.Background()

	created, err := svc.Create(ctx, Input{ID: "ada-1", Document: Document{"name": "Ada"}})
	require.NoError(t, err)
	require.Equal(t, "ada-1", created.ID)
	require.Equal(t, int64(1), created.Version)
	require.Equal(t, created.CreatedAt, created.UpdatedAt)

	_, err = svc.Create(ctx, Input{ID: "ada-1", Document: Document{}})
	require.ErrorIs(t, err, ErrConflict)
}

func TestServiceConcurrentCreatesOfSameIDConflict(t *testing.T) {
	t.Parallel()
	svc := newTestService(NewMemoryStore())

	const workers = 16
	var (
		wg        sync.WaitGroup
		created   atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Create(context.Background(), Input{ID: "shared", Document: Document{"writer": float64(i)}})
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, ErrConflict):
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), created.Load())
	require.Equal(t, int32(workers-1), conflicts.Load())
}

func TestServiceCreateExhaustsIdentifiers(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	_, err := store.Put(context.Background(), Resume{ID: "taken", Payload: Document{}, Version: 1}, PutOptions{MustNotExist: true})
	require.NoError(t, err)

	ids := &fixedIDs{id: "taken"}
	svc := newTestService(store)
	svc.IDs = ids

	_, err = svc.Create(context.Background(), Input{Document: Document{"name": "Ada"}})
	require.ErrorIs(t, err, ErrIdentifierExhausted)
	require.Equal(t, int32(maxIDAttempts), ids.calls.Load())
}

func TestServiceCreateSurfacesGeneratorFailure(t *testing.T) {
	t.Parallel()
	svc := newTestService(NewMemoryStore())
	svc.IDs = failingIDs{}

	_, err := svc.Create(context.Background(), Input{Document: Document{}})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrIdentifierExhausted)
}

func TestServiceReplace(t *testing.T) {
	t.Parallel()
	svc := newTestService(NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Replace(ctx, "ghost", Input{Document: Document{"name": "x"}}, 0)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Get(ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)

	created, err := svc.Create(ctx, Input{ID: "r1", Document: Document{"name": "Ada"}})
	require.NoError(t, err)

	replaced, err := svc.Replace(ctx, "r1", Input{Document: Document{"name": "Grace"}}, created.Version)
	require.NoError(t, err)
	require.Equal(t, int64(2), replaced.Version)
	require.Equal(t, Document{"name": "Grace"}, replaced.Payload)

	_, err = svc.Replace(ctx, "r1", Input{Document: Document{}}, created.Version)
	require.ErrorIs(t, err, ErrConflict)
}

func TestServiceDeleteThenGet(t *testing.T) {
	t.Parallel()
	svc := newTestService(NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Create(ctx, Input{ID: "r1", Document: Document{}})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "r1"))

	_, err = svc.Get(ctx, "r1")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, "r1"), ErrNotFound)
}

func TestServiceListReturnsEveryRecord(t *testing.T) {
	t.Parallel()
	svc := newTestService(NewMemoryStore())
	ctx := context.Background()

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.NotNil(t, list)
	require.Empty(t, list)

	want := map[string]bool{}
	for i := 0; i < 25; i++ {
		created, err := svc.Create(ctx, Input{Document: Document{"n": float64(i)}})
		require.NoError(t, err)
		want[created.ID] = true
	}

	list, err = svc.List(ctx)
	require.NoError(t, err)
	got := map[string]bool{}
	for _, r := range list {
		got[r.ID] = true
	}
	require.Equal(t, want, got)
}

func TestServiceRetriesUnavailableStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := NewMemoryStore()
	_, err := mem.Put(ctx, Resume{ID: "r1", Payload: Document{}, Version: 1}, PutOptions{MustNotExist: true})
	require.NoError(t, err)

	recovering := &flakyStore{Store: mem, fails: 2}
	got, err := newTestService(recovering).Get(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "r1", got.ID)
	require.Equal(t, 3, recovering.calls)

	down := &flakyStore{Store: mem, fails: 100}
	_, err = newTestService(down).List(ctx)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.Equal(t, 1+MaxStoreRetries, down.calls)
}
