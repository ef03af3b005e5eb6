package checker

import (
	"context"
	"net"
	"net/netip"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/servermon/internal/domain"
	"github.com/hamed0406/servermon/internal/probe"
	"github.com/hamed0406/servermon/internal/repo/memory"
)

// --- fakes ---

type stubPinger struct{ up map[string]bool }

func (s stubPinger) Ping(_ context.Context, ip netip.Addr) bool { return s.up[ip.String()] }

// portDialer accepts connections on the listed "ip:port" targets and
// refuses everything else.
type portDialer struct{ open map[string]bool }

func (d portDialer) DialContext(_ context.Context, _, address string) (net.Conn, error) {
	if d.open[address] {
		c, s := net.Pipe()
		_ = s.Close()
		return c, nil
	}
	return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errRefused{}}
}

type errRefused struct{}

func (errRefused) Error() string { return "connection refused" }

// gatedProber blocks every probe until release is closed.
type gatedProber struct {
	started chan string
	release chan struct{}
	out     probe.Outcome
}

func (g *gatedProber) Probe(ctx context.Context, address string, ports []uint16) probe.Outcome {
	g.started <- address
	<-g.release
	return g.out
}

type sleepyProber struct{ d time.Duration }

func (s sleepyProber) Probe(ctx context.Context, address string, ports []uint16) probe.Outcome {
	time.Sleep(s.d)
	return probe.Outcome{Reachable: true, OpenPorts: ports}
}

func seed(t *testing.T, s *memory.Store, eps ...domain.Endpoint) []domain.Endpoint {
	t.Helper()
	out := make([]domain.Endpoint, 0, len(eps))
	for _, e := range eps {
		if err := s.Add(context.Background(), &e); err != nil {
			t.Fatalf("Add: %v", err)
		}
		out = append(out, e)
	}
	return out
}

func realProber() *probe.Prober {
	pr := probe.NewProber(zap.NewNop(), stubPinger{up: map[string]bool{"192.0.2.1": true}}, 50*time.Millisecond, 50*time.Millisecond)
	pr.Dialer = portDialer{open: map[string]bool{"192.0.2.1:22": true, "192.0.2.2:443": true}}
	return pr
}

// --- tests ---

func TestPass_AppliesStatusPerEndpoint(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eps := seed(t, store,
		domain.NewEndpoint("a", "192.0.2.1", []uint16{22, 80}),
		domain.NewEndpoint("b", "192.0.2.2", []uint16{443}),
		domain.NewEndpoint("bad", "not-an-ip", []uint16{22}),
	)

	c := New(zap.NewNop(), realProber(), 8)
	sum, err := c.Pass(ctx, store)
	if err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if sum.Probed != 3 || sum.Applied != 3 || sum.Discarded != 0 || sum.Reachable != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	all, _ := store.List(ctx)
	for _, e := range all {
		if !e.Status.Checked() {
			t.Fatalf("%s: last_checked not set", e.Name)
		}
		for _, p := range e.Status.OpenPorts {
			if !e.HasPort(p) {
				t.Fatalf("%s: open port %d not in ports %v", e.Name, p, e.Ports)
			}
		}
	}

	got := func(id domain.EndpointID) domain.Endpoint {
		e, _ := store.Get(ctx, id)
		return e
	}
	if a := got(eps[0].ID); !a.Status.Reachable || !reflect.DeepEqual(a.Status.OpenPorts, []uint16{22}) {
		t.Fatalf("a: %+v", a.Status)
	}
	if b := got(eps[1].ID); b.Status.Reachable || !reflect.DeepEqual(b.Status.OpenPorts, []uint16{443}) {
		t.Fatalf("b: %+v", b.Status)
	}
	if bad := got(eps[2].ID); bad.Status.Reachable || len(bad.Status.OpenPorts) != 0 {
		t.Fatalf("invalid address must be unreachable with no open ports: %+v", bad.Status)
	}
}

func TestPass_IsIdempotentUnderStableConditions(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store,
		domain.NewEndpoint("a", "192.0.2.1", []uint16{22, 80}),
		domain.NewEndpoint("b", "192.0.2.2", []uint16{443, 8443}),
	)
	c := New(zap.NewNop(), realProber(), 4)

	snapshot := func() map[domain.EndpointID]domain.Status {
		all, _ := store.List(ctx)
		m := make(map[domain.EndpointID]domain.Status, len(all))
		for _, e := range all {
			st := e.Status
			st.LastChecked = nil
			m[e.ID] = st
		}
		return m
	}

	if _, err := c.Pass(ctx, store); err != nil {
		t.Fatal(err)
	}
	first := snapshot()
	if _, err := c.Pass(ctx, store); err != nil {
		t.Fatal(err)
	}
	if second := snapshot(); !reflect.DeepEqual(first, second) {
		t.Fatalf("passes differ:\n%+v\n%+v", first, second)
	}
}

func TestRun_ProbesEndpointsConcurrently(t *testing.T) {
	eps := make([]domain.Endpoint, 20)
	for i := range eps {
		eps[i] = domain.NewEndpoint("e", "192.0.2.1", []uint16{22})
	}
	c := New(zap.NewNop(), sleepyProber{d: 100 * time.Millisecond}, 64)

	start := time.Now()
	n := 0
	for range c.Run(context.Background(), eps) {
		n++
	}
	if n != len(eps) {
		t.Fatalf("want %d results, got %d", len(eps), n)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("20 x 100ms endpoints took %v; pass looks serial", elapsed)
	}
}

func TestRun_UnlimitedConcurrencyIsOneWave(t *testing.T) {
	eps := make([]domain.Endpoint, 200)
	for i := range eps {
		eps[i] = domain.NewEndpoint("e", "192.0.2.1", []uint16{22, 80})
	}
	c := New(zap.NewNop(), sleepyProber{d: 200 * time.Millisecond}, 0)

	start := time.Now()
	n := 0
	for range c.Run(context.Background(), eps) {
		n++
	}
	if n != len(eps) {
		t.Fatalf("want %d results, got %d", len(eps), n)
	}
	// 200 endpoints in waves of 64 would take at least 4 x 200ms.
	if elapsed := time.Since(start); elapsed > 600*time.Millisecond {
		t.Fatalf("200 x 200ms endpoints took %v; pass ran in waves", elapsed)
	}
}

func TestRun_TagsResultsByIdentity(t *testing.T) {
	eps := []domain.Endpoint{
		domain.NewEndpoint("a", "192.0.2.1", []uint16{22}),
		domain.NewEndpoint("b", "192.0.2.2", []uint16{443}),
	}
	c := New(zap.NewNop(), realProber(), 2)
	seen := map[domain.EndpointID]Result{}
	for res := range c.Run(context.Background(), eps) {
		seen[res.ID] = res
	}
	if seen[eps[0].ID].Address != "192.0.2.1" || seen[eps[1].ID].Address != "192.0.2.2" {
		t.Fatalf("results not tagged with their endpoint: %+v", seen)
	}
}

func TestPass_RemovedWhileInFlightIsDiscarded(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eps := seed(t, store,
		domain.NewEndpoint("keep", "192.0.2.1", []uint16{22}),
		domain.NewEndpoint("drop", "192.0.2.2", []uint16{22}),
	)
	gp := &gatedProber{
		started: make(chan string, 2),
		release: make(chan struct{}),
		out:     probe.Outcome{Reachable: true, OpenPorts: []uint16{22}},
	}
	c := New(zap.NewNop(), gp, 2)

	var sum Summary
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sum, _ = c.Pass(ctx, store)
	}()

	<-gp.started
	<-gp.started
	if err := store.Remove(ctx, eps[1].ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	close(gp.release)
	wg.Wait()

	if sum.Applied != 1 || sum.Discarded != 1 {
		t.Fatalf("want 1 applied / 1 discarded, got %+v", sum)
	}
	all, _ := store.List(ctx)
	if len(all) != 1 || all[0].ID != eps[0].ID {
		t.Fatalf("removed endpoint reappeared: %+v", all)
	}
	if !all[0].Status.Reachable {
		t.Fatalf("surviving endpoint not updated: %+v", all[0].Status)
	}
}

func TestRun_EmptySnapshotClosesImmediately(t *testing.T) {
	c := New(nil, sleepyProber{}, 0)
	select {
	case _, ok := <-c.Run(context.Background(), nil):
		if ok {
			t.Fatal("unexpected result")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed for empty pass")
	}
}
