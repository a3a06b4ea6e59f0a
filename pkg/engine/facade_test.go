package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fleetform/fleetform/pkg/facts"
	"github.com/fleetform/fleetform/pkg/inventory"
	"github.com/fleetform/fleetform/pkg/telemetry"
)

// counterFact counts fetches so cache behavior is observable.
type counterFact struct {
	name    string
	value   any
	err     error
	fetches atomic.Int64
}

func (f *counterFact) Name() string { return f.name }

func (f *counterFact) Fetch(ctx context.Context, host facts.Runner, args facts.Args) (any, error) {
	f.fetches.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.value, nil
}

// mutableCounterFact adds create/delete tracking.
type mutableCounterFact struct {
	counterFact
	creates atomic.Int64
	deletes atomic.Int64
}

func (f *mutableCounterFact) Create(ctx context.Context, host facts.Runner, data any, args facts.Args) error {
	f.creates.Add(1)
	return nil
}

func (f *mutableCounterFact) Delete(ctx context.Context, host facts.Runner, args facts.Args) error {
	f.deletes.Add(1)
	return nil
}

func newFacadeFixture(t *testing.T, conn *mockConnector, registry *facts.Registry) (*Host, *RunState, *syncBuffer) {
	t.Helper()
	inv := inventory.New()
	inv.AddHost(&inventory.Entry{Name: "db1"})

	buf := &syncBuffer{}
	state := NewRunState(inv,
		WithLogger(zerolog.New(buf).Level(zerolog.InfoLevel)),
		WithRegistry(registry),
	)

	h, err := NewHost("db1", inv, conn)
	if err != nil {
		t.Fatalf("NewHost failed: %v", err)
	}
	h.BindState(state)
	return h, state, buf
}

func TestReadUnknownFactFailsBeforeConnecting(t *testing.T) {
	conn := newMockConnector()
	h, _, buf := newFacadeFixture(t, conn, facts.NewRegistry())

	_, err := h.Facts.Read(context.Background(), "no_such_fact", nil)
	if !IsUnknownFact(err) {
		t.Fatalf("expected unknown fact error, got: %v", err)
	}
	if got := conn.attempts(); got != 0 {
		t.Errorf("unknown fact must not trigger a connection, got %d attempts", got)
	}
	if buf.String() != "" {
		t.Errorf("unknown fact must not log, got %q", buf.String())
	}
}

func TestReadWithoutStateIsPrecondition(t *testing.T) {
	inv := inventory.New()
	inv.AddHost(&inventory.Entry{Name: "db1"})
	h, err := NewHost("db1", inv, newMockConnector())
	if err != nil {
		t.Fatalf("NewHost failed: %v", err)
	}

	_, err = h.Facts.Read(context.Background(), "os_version", nil)
	if !IsPrecondition(err) {
		t.Fatalf("expected precondition error, got: %v", err)
	}
}

func TestReadConnectsAndCaches(t *testing.T) {
	registry := facts.NewRegistry()
	fact := &counterFact{name: "alpha", value: "first"}
	registry.MustRegister(fact)

	conn := newMockConnector()
	h, _, buf := newFacadeFixture(t, conn, registry)

	value, err := h.Facts.Read(context.Background(), "alpha", nil)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if value != "first" {
		t.Errorf("unexpected value %v", value)
	}
	if !strings.Contains(buf.String(), "db1[ ] Connected (for alpha fact)") {
		t.Errorf("expected annotated connect line, got %q", buf.String())
	}

	// Second read: cached, no refetch, no second connect line.
	value, err = h.Facts.Read(context.Background(), "alpha", nil)
	if err != nil {
		t.Fatalf("second Read failed: %v", err)
	}
	if value != "first" {
		t.Errorf("unexpected cached value %v", value)
	}
	if got := fact.fetches.Load(); got != 1 {
		t.Errorf("expected 1 fetch, got %d", got)
	}
	if got := conn.attempts(); got != 1 {
		t.Errorf("expected 1 connector attempt, got %d", got)
	}
	if got := countOccurrences(buf.String(), "Connected"); got != 1 {
		t.Errorf("expected 1 connect line, got %d", got)
	}
}

func TestReadDistinctArgsCacheSeparately(t *testing.T) {
	registry := facts.NewRegistry()
	fact := &counterFact{name: "alpha", value: "v"}
	registry.MustRegister(fact)

	h, _, _ := newFacadeFixture(t, newMockConnector(), registry)

	for _, args := range []facts.Args{{"path": "/a"}, {"path": "/b"}, {"path": "/a"}} {
		if _, err := h.Facts.Read(context.Background(), "alpha", args); err != nil {
			t.Fatalf("Read(%v) failed: %v", args, err)
		}
	}
	if got := fact.fetches.Load(); got != 2 {
		t.Errorf("expected 2 fetches for 2 distinct keys, got %d", got)
	}
}

func TestReadConnectionFailureIsFatal(t *testing.T) {
	registry := facts.NewRegistry()
	fact := &counterFact{name: "alpha", value: "v"}
	registry.MustRegister(fact)

	conn := newMockConnector()
	conn.failReason = "timeout"
	h, state, buf := newFacadeFixture(t, conn, registry)

	_, err := h.Facts.Read(context.Background(), "alpha", nil)
	if !IsFactUnavailable(err) {
		t.Fatalf("expected fact unavailable error, got: %v", err)
	}
	if got := fact.fetches.Load(); got != 0 {
		t.Errorf("no fetch expected without a connection, got %d", got)
	}
	if got := state.Cache.Len(); got != 0 {
		t.Errorf("cache must stay empty, got %d entries", got)
	}
	if !strings.Contains(buf.String(), "db1[ ] timeout (for alpha fact)") {
		t.Errorf("expected failure line on the run log, got %q", buf.String())
	}
}

func TestReadFetchErrorNotCached(t *testing.T) {
	registry := facts.NewRegistry()
	fact := &counterFact{name: "alpha", err: errors.New("boom")}
	registry.MustRegister(fact)

	h, state, _ := newFacadeFixture(t, newMockConnector(), registry)

	if _, err := h.Facts.Read(context.Background(), "alpha", nil); err == nil {
		t.Fatal("expected fetch error")
	}
	if got := state.Cache.Len(); got != 0 {
		t.Errorf("failed fetch must not be cached, got %d entries", got)
	}

	// A later read retries the fetch.
	fact.err = nil
	fact.value = "recovered"
	value, err := h.Facts.Read(context.Background(), "alpha", nil)
	if err != nil {
		t.Fatalf("retry Read failed: %v", err)
	}
	if value != "recovered" {
		t.Errorf("unexpected value %v", value)
	}
	if got := fact.fetches.Load(); got != 2 {
		t.Errorf("expected 2 fetches, got %d", got)
	}
}

func TestConcurrentReadsFetchOnce(t *testing.T) {
	registry := facts.NewRegistry()
	fact := &counterFact{name: "alpha", value: 42}
	registry.MustRegister(fact)

	h, _, _ := newFacadeFixture(t, newMockConnector(), registry)

	const readers = 16
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := h.Facts.Read(context.Background(), "alpha", nil)
			if err != nil {
				t.Errorf("Read failed: %v", err)
				return
			}
			if value != 42 {
				t.Errorf("unexpected value %v", value)
			}
		}()
	}
	wg.Wait()

	if got := fact.fetches.Load(); got != 1 {
		t.Errorf("expected 1 fetch under concurrent reads, got %d", got)
	}
}

func TestCreateInvalidatesCachedRead(t *testing.T) {
	registry := facts.NewRegistry()
	fact := &mutableCounterFact{counterFact: counterFact{name: "marker", value: "v1"}}
	registry.MustRegister(fact)

	h, _, _ := newFacadeFixture(t, newMockConnector(), registry)
	args := facts.Args{"path": "/tmp/marker"}

	if _, err := h.Facts.Read(context.Background(), "marker", args); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if err := h.Facts.Create(context.Background(), "marker", nil, args); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if got := fact.creates.Load(); got != 1 {
		t.Errorf("expected 1 create, got %d", got)
	}

	// The next read must refetch.
	if _, err := h.Facts.Read(context.Background(), "marker", args); err != nil {
		t.Fatalf("Read after Create failed: %v", err)
	}
	if got := fact.fetches.Load(); got != 2 {
		t.Errorf("expected refetch after create, got %d fetches", got)
	}
}

func TestDeleteInvalidatesCachedRead(t *testing.T) {
	registry := facts.NewRegistry()
	fact := &mutableCounterFact{counterFact: counterFact{name: "marker", value: "v1"}}
	registry.MustRegister(fact)

	h, _, _ := newFacadeFixture(t, newMockConnector(), registry)

	if _, err := h.Facts.Read(context.Background(), "marker", nil); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if err := h.Facts.Delete(context.Background(), "marker", nil); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got := fact.deletes.Load(); got != 1 {
		t.Errorf("expected 1 delete, got %d", got)
	}
	if _, err := h.Facts.Read(context.Background(), "marker", nil); err != nil {
		t.Fatalf("Read after Delete failed: %v", err)
	}
	if got := fact.fetches.Load(); got != 2 {
		t.Errorf("expected refetch after delete, got %d fetches", got)
	}
}

func TestCreateOnQueryOnlyFactIsUnsupported(t *testing.T) {
	registry := facts.NewRegistry()
	registry.MustRegister(&counterFact{name: "alpha", value: "v"})

	h, _, _ := newFacadeFixture(t, newMockConnector(), registry)

	if err := h.Facts.Create(context.Background(), "alpha", nil, nil); !IsUnsupported(err) {
		t.Errorf("Create: expected unsupported error, got: %v", err)
	}
	if err := h.Facts.Delete(context.Background(), "alpha", nil); !IsUnsupported(err) {
		t.Errorf("Delete: expected unsupported error, got: %v", err)
	}
}

func TestMutateUnknownFact(t *testing.T) {
	h, _, _ := newFacadeFixture(t, newMockConnector(), facts.NewRegistry())

	if err := h.Facts.Create(context.Background(), "ghost", nil, nil); !IsUnknownFact(err) {
		t.Errorf("expected unknown fact error, got: %v", err)
	}
}

func TestConnectAndReadTraced(t *testing.T) {
	tracer, err := telemetry.NewTracer(telemetry.TracingConfig{
		Enabled:      true,
		Exporter:     "none",
		SamplingRate: 1,
	}, "fleetform-test", "test", "test")
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}
	defer tracer.Shutdown(context.Background())

	registry := facts.NewRegistry()
	fact := &counterFact{name: "alpha", value: "v"}
	registry.MustRegister(fact)

	inv := inventory.New()
	inv.AddHost(&inventory.Entry{Name: "db1"})
	buf := &syncBuffer{}
	state := NewRunState(inv,
		WithLogger(zerolog.New(buf).Level(zerolog.InfoLevel)),
		WithRegistry(registry),
		WithTracer(tracer),
	)

	h, err := NewHost("db1", inv, newMockConnector())
	if err != nil {
		t.Fatalf("NewHost failed: %v", err)
	}
	h.BindState(state)

	// The traced path must behave identically: connect on demand, one
	// fetch, value returned.
	value, err := h.Facts.Read(context.Background(), "alpha", nil)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if value != "v" {
		t.Errorf("unexpected value %v", value)
	}
	if got := fact.fetches.Load(); got != 1 {
		t.Errorf("expected 1 fetch, got %d", got)
	}
	if !strings.Contains(buf.String(), "db1[ ] Connected (for alpha fact)") {
		t.Errorf("expected connect line, got %q", buf.String())
	}
}

func TestFacadeNames(t *testing.T) {
	registry := facts.NewRegistry()
	registry.MustRegister(&counterFact{name: "zeta"})
	registry.MustRegister(&counterFact{name: "alpha"})

	h, _, _ := newFacadeFixture(t, newMockConnector(), registry)

	names := h.Facts.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("unexpected names %v", names)
	}
}
