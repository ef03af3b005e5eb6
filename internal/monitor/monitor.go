package monitor

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/servermon/internal/checker"
	"github.com/hamed0406/servermon/internal/domain"
	"github.com/hamed0406/servermon/internal/events"
	"github.com/hamed0406/servermon/internal/persist"
	"github.com/hamed0406/servermon/internal/repo"
	"github.com/hamed0406/servermon/internal/scheduler"
)

const (
	DefaultInterval = 600 * time.Second
	DefaultTick     = time.Second
)

type Options struct {
	Interval time.Duration // zero disables automatic passes
	Tick     time.Duration // how often the loop asks the scheduler
	State    persist.File
}

// Monitor owns the endpoint list at runtime. A single loop goroutine starts
// check passes and is the only writer of check results; user edits go
// through the store directly.
type Monitor struct {
	logger  *zap.Logger
	store   repo.EndpointStore
	checker *checker.Checker
	sched   *scheduler.Scheduler
	hub     *events.Hub
	state   persist.File
	tick    time.Duration
	now     func() time.Time

	trigger   chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	ioMu      sync.Mutex
}

func New(logger *zap.Logger, store repo.EndpointStore, chk *checker.Checker, hub *events.Hub, opts Options) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hub == nil {
		hub = events.NewHub()
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Interval < 0 {
		opts.Interval = 0
	}
	return &Monitor{
		logger:  logger,
		store:   store,
		checker: chk,
		sched:   scheduler.New(opts.Interval, time.Now()),
		hub:     hub,
		state:   opts.State,
		tick:    opts.Tick,
		now:     time.Now,
		trigger: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the control loop.
func (m *Monitor) Start() {
	m.startOnce.Do(func() { go m.run() })
}

// Stop terminates the loop, cancelling any pass in flight, and waits for it.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.startOnce.Do(func() { close(m.doneCh) })
	<-m.doneCh
}

type pass struct {
	results <-chan checker.Result
	summary checker.Summary
}

func (m *Monitor) run() {
	defer close(m.doneCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	cur := m.maybeStart(ctx, nil)
	for {
		var results <-chan checker.Result
		if cur != nil {
			results = cur.results
		}

		select {
		case <-m.stopCh:
			if cur != nil {
				m.sched.Complete()
				m.logger.Info("check_pass_abandoned", zap.Int("applied", cur.summary.Applied))
			}
			return
		case <-ticker.C:
			cur = m.maybeStart(ctx, cur)
		case <-m.trigger:
			m.sched.Trigger()
			cur = m.maybeStart(ctx, cur)
		case res, ok := <-results:
			if !ok {
				m.finish(cur)
				cur = m.maybeStart(ctx, nil)
				continue
			}
			m.apply(ctx, cur, res)
		}
	}
}

func (m *Monitor) maybeStart(ctx context.Context, cur *pass) *pass {
	if cur != nil {
		return cur
	}
	now := m.now()
	if !m.sched.Begin(now) {
		return nil
	}
	snapshot, err := m.store.List(ctx)
	if err != nil {
		m.logger.Warn("check_snapshot_error", zap.Error(err))
		m.sched.Complete()
		return nil
	}
	m.logger.Debug("check_pass_started", zap.Int("endpoints", len(snapshot)))
	m.hub.Publish(events.Event{Type: events.CheckStarted, Endpoints: len(snapshot)})
	return &pass{
		results: m.checker.Run(ctx, snapshot),
		summary: checker.Summary{StartedAt: now},
	}
}

func (m *Monitor) apply(ctx context.Context, p *pass, res checker.Result) {
	p.summary.Probed++
	if res.Status.Reachable {
		p.summary.Reachable++
	}
	ok, err := m.store.ApplyStatus(ctx, res.ID, res.Address, res.Status)
	if err != nil {
		m.logger.Warn("apply_status_error", zap.String("endpoint_id", string(res.ID)), zap.Error(err))
	}
	if !ok {
		p.summary.Discarded++
		m.logger.Debug("check_result_discarded", zap.String("endpoint_id", string(res.ID)), zap.String("ip", res.Address))
		return
	}
	p.summary.Applied++
}

func (m *Monitor) finish(p *pass) {
	m.sched.Complete()
	p.summary.FinishedAt = m.now()
	s := p.summary
	m.logger.Info("check_pass_completed",
		zap.Int("probed", s.Probed),
		zap.Int("applied", s.Applied),
		zap.Int("discarded", s.Discarded),
		zap.Int("reachable", s.Reachable),
		zap.Duration("took", s.FinishedAt.Sub(s.StartedAt)),
	)
	m.hub.Publish(events.Event{
		Type:      events.CheckCompleted,
		Probed:    s.Probed,
		Applied:   s.Applied,
		Discarded: s.Discarded,
		Reachable: s.Reachable,
	})
}

// TriggerCheckNow requests an immediate pass. Requests made while a pass is
// running are coalesced into one follow-up pass.
func (m *Monitor) TriggerCheckNow() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// SetInterval sets the refresh interval in whole seconds; zero disables
// automatic passes.
func (m *Monitor) SetInterval(seconds uint64) {
	if seconds > maxIntervalSecs {
		seconds = maxIntervalSecs
	}
	d := time.Duration(seconds) * time.Second
	m.sched.SetInterval(d)
	m.logger.Info("refresh_interval_set", zap.Duration("interval", d))
	m.hub.Publish(events.Event{Type: events.PolicyChanged})
}

const maxIntervalSecs = uint64(1<<63-1) / uint64(time.Second)

type PolicyView struct {
	Interval  time.Duration
	LastRun   time.Time
	Remaining time.Duration
	Enabled   bool
	State     scheduler.State
}

func (m *Monitor) Policy() PolicyView {
	now := m.now()
	p := m.sched.Policy()
	return PolicyView{
		Interval:  p.Interval,
		LastRun:   p.LastRun,
		Remaining: p.Remaining(now),
		Enabled:   p.Enabled(),
		State:     m.sched.State(),
	}
}

// Endpoints returns a copy of the list in display order.
func (m *Monitor) Endpoints(ctx context.Context) ([]domain.Endpoint, error) {
	return m.store.List(ctx)
}

func (m *Monitor) Endpoint(ctx context.Context, id domain.EndpointID) (domain.Endpoint, error) {
	return m.store.Get(ctx, id)
}

// AddEndpoint appends a new endpoint. An address that is not an IP literal
// is rejected with domain.ErrInvalidAddress and nothing is stored.
func (m *Monitor) AddEndpoint(ctx context.Context, name, address string, ports []uint16) (domain.Endpoint, error) {
	address = strings.TrimSpace(address)
	if _, err := domain.ValidateAddress(address); err != nil {
		m.logger.Warn("endpoint_rejected", zap.String("name", name), zap.String("ip", address), zap.Error(err))
		return domain.Endpoint{}, err
	}
	e := domain.NewEndpoint(name, address, ports)
	if err := m.store.Add(ctx, &e); err != nil {
		return domain.Endpoint{}, err
	}
	m.logger.Info("endpoint_added",
		zap.String("endpoint_id", string(e.ID)),
		zap.String("name", e.Name),
		zap.String("ip", e.Address),
		zap.String("ports", domain.FormatPorts(e.Ports)),
	)
	m.publishEndpoints(ctx)
	return e, nil
}

func (m *Monitor) EditEndpoint(ctx context.Context, id domain.EndpointID, name, address string, ports []uint16) (domain.Endpoint, error) {
	address = strings.TrimSpace(address)
	if _, err := domain.ValidateAddress(address); err != nil {
		m.logger.Warn("endpoint_rejected", zap.String("endpoint_id", string(id)), zap.String("ip", address), zap.Error(err))
		return domain.Endpoint{}, err
	}
	e, err := m.store.Update(ctx, id, name, address, ports)
	if err != nil {
		return domain.Endpoint{}, err
	}
	m.logger.Info("endpoint_updated",
		zap.String("endpoint_id", string(e.ID)),
		zap.String("name", e.Name),
		zap.String("ip", e.Address),
		zap.String("ports", domain.FormatPorts(e.Ports)),
	)
	m.publishEndpoints(ctx)
	return e, nil
}

func (m *Monitor) RemoveEndpoint(ctx context.Context, id domain.EndpointID) error {
	if err := m.store.Remove(ctx, id); err != nil {
		return err
	}
	m.logger.Info("endpoint_removed", zap.String("endpoint_id", string(id)))
	m.publishEndpoints(ctx)
	return nil
}

func (m *Monitor) Subscribe() (<-chan events.Event, func()) {
	return m.hub.Subscribe()
}

func (m *Monitor) publishEndpoints(ctx context.Context) {
	all, err := m.store.List(ctx)
	if err != nil {
		return
	}
	m.hub.Publish(events.Event{Type: events.EndpointsChanged, Endpoints: len(all)})
}
