package checker

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/servermon/internal/domain"
	"github.com/hamed0406/servermon/internal/probe"
	"github.com/hamed0406/servermon/internal/repo"
)

// Prober is satisfied by *probe.Prober.
type Prober interface {
	Probe(ctx context.Context, address string, ports []uint16) probe.Outcome
}

// Result is one endpoint's outcome, tagged with the endpoint identity and
// the address that was probed.
type Result struct {
	ID      domain.EndpointID
	Address string
	Status  domain.Status
}

// Summary describes a finished pass.
type Summary struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Probed     int
	Applied    int
	Discarded  int
	Reachable  int
}

type Checker struct {
	Logger      *zap.Logger
	Prober      Prober
	Concurrency int
	Now         func() time.Time
}

func New(logger *zap.Logger, prober Prober, concurrency int) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 0 {
		concurrency = 0
	}
	return &Checker{
		Logger:      logger,
		Prober:      prober,
		Concurrency: concurrency,
		Now:         time.Now,
	}
}

// Run probes every endpoint in snapshot, up to Concurrency at a time, or all
// at once when Concurrency is 0. Each
// endpoint yields exactly one Result once all of its probes are done. The
// channel is buffered for the whole snapshot and closed when the pass ends,
// so producers never block on a slow consumer.
func (c *Checker) Run(ctx context.Context, snapshot []domain.Endpoint) <-chan Result {
	out := make(chan Result, len(snapshot))
	targets := make([]domain.Endpoint, len(snapshot))
	for i, e := range snapshot {
		targets[i] = e.Clone()
	}

	go func() {
		defer close(out)

		var g errgroup.Group
		if c.Concurrency > 0 {
			g.SetLimit(c.Concurrency)
		}
		for _, e := range targets {
			e := e
			g.Go(func() error {
				outcome := c.Prober.Probe(ctx, e.Address, e.Ports)
				checkedAt := c.now()
				out <- Result{
					ID:      e.ID,
					Address: e.Address,
					Status: domain.Status{
						LastChecked: &checkedAt,
						Reachable:   outcome.Reachable,
						OpenPorts:   outcome.OpenPorts,
					},
				}
				c.Logger.Debug("endpoint_checked",
					zap.String("endpoint_id", string(e.ID)),
					zap.String("ip", e.Address),
					zap.Bool("reachable", outcome.Reachable),
					zap.Int("ports", len(e.Ports)),
					zap.Int("open_ports", len(outcome.OpenPorts)),
				)
				return nil
			})
		}
		_ = g.Wait()
	}()
	return out
}

// Pass runs one complete check against store and commits each result as it
// arrives. Results for endpoints removed or re-addressed meanwhile are
// dropped.
func (c *Checker) Pass(ctx context.Context, store repo.EndpointStore) (Summary, error) {
	sum := Summary{StartedAt: c.now()}
	snapshot, err := store.List(ctx)
	if err != nil {
		return sum, err
	}
	for res := range c.Run(ctx, snapshot) {
		sum.Probed++
		if res.Status.Reachable {
			sum.Reachable++
		}
		ok, err := store.ApplyStatus(ctx, res.ID, res.Address, res.Status)
		if err != nil {
			c.Logger.Warn("apply_status_error", zap.String("endpoint_id", string(res.ID)), zap.Error(err))
		}
		if ok {
			sum.Applied++
		} else {
			sum.Discarded++
		}
	}
	sum.FinishedAt = c.now()
	return sum, nil
}

func (c *Checker) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}
