package probe

import (
	"context"
	"net"
	"net/netip"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/servermon/internal/domain"
)

const (
	DefaultPortTimeout = 500 * time.Millisecond
	DefaultPingTimeout = time.Second
)

// Pinger performs a host-level reachability check.
type Pinger interface {
	Ping(ctx context.Context, ip netip.Addr) bool
}

// Dialer opens connection-oriented handshakes. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Outcome is the result of probing one endpoint.
// OpenPorts is sorted and always a subset of the probed ports.
type Outcome struct {
	Reachable bool
	OpenPorts []uint16
}

type Prober struct {
	Logger      *zap.Logger
	Pinger      Pinger
	Dialer      Dialer
	PortTimeout time.Duration
	PingTimeout time.Duration
}

func NewProber(logger *zap.Logger, pinger Pinger, portTimeout, pingTimeout time.Duration) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	if portTimeout <= 0 {
		portTimeout = DefaultPortTimeout
	}
	if pingTimeout <= 0 {
		pingTimeout = DefaultPingTimeout
	}
	return &Prober{
		Logger:      logger,
		Pinger:      pinger,
		Dialer:      &net.Dialer{},
		PortTimeout: portTimeout,
		PingTimeout: pingTimeout,
	}
}

// Probe checks reachability of address and whether each port accepts a
// TCP connection. The ping and every port dial run concurrently and each is
// bounded by its own timeout. Failures are reported as data: an address that
// does not parse is simply unreachable with no open ports.
func (p *Prober) Probe(ctx context.Context, address string, ports []uint16) Outcome {
	ip, err := domain.ValidateAddress(address)
	if err != nil {
		p.log().Debug("probe_invalid_address", zap.String("ip", address))
		return Outcome{OpenPorts: []uint16{}}
	}

	sorted := domain.NormalizePorts(ports)
	open := make([]bool, len(sorted))
	var reachable bool

	var g errgroup.Group
	g.Go(func() error {
		reachable = p.ping(ctx, ip)
		return nil
	})
	for i, port := range sorted {
		i, port := i, port
		g.Go(func() error {
			open[i] = p.portOpen(ctx, ip, port)
			return nil
		})
	}
	_ = g.Wait()

	out := Outcome{Reachable: reachable, OpenPorts: make([]uint16, 0, len(sorted))}
	for i, ok := range open {
		if ok {
			out.OpenPorts = append(out.OpenPorts, sorted[i])
		}
	}
	return out
}

func (p *Prober) ping(ctx context.Context, ip netip.Addr) bool {
	if p.Pinger == nil {
		return false
	}
	timeout := p.PingTimeout
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Pinger.Ping(pctx, ip)
}

func (p *Prober) portOpen(ctx context.Context, ip netip.Addr, port uint16) bool {
	timeout := p.PortTimeout
	if timeout <= 0 {
		timeout = DefaultPortTimeout
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := p.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	target := netip.AddrPortFrom(ip, port).String()
	conn, err := dialer.DialContext(dctx, "tcp", target)
	if err != nil {
		p.log().Debug("port_closed", zap.String("addr", target), zap.Error(err))
		return false
	}
	_ = conn.Close()
	return true
}

func (p *Prober) log() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}
