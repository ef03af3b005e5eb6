package probe

import (
	"context"
	"net"
	"net/netip"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	protocolICMP     = 1
	protocolIPv6ICMP = 58
)

// ICMPPinger sends a single echo request and waits for the matching reply.
//
// Unprivileged mode uses datagram ICMP sockets ("udp4"/"udp6"), which Linux
// allows when net.ipv4.ping_group_range covers the process group. Privileged
// mode uses raw sockets and needs CAP_NET_RAW.
type ICMPPinger struct {
	Logger     *zap.Logger
	Privileged bool
	Timeout    time.Duration

	seq atomic.Uint32
}

func NewICMPPinger(logger *zap.Logger, privileged bool, timeout time.Duration) *ICMPPinger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	return &ICMPPinger{Logger: logger, Privileged: privileged, Timeout: timeout}
}

func (p *ICMPPinger) Ping(ctx context.Context, ip netip.Addr) bool {
	ip = ip.Unmap()
	network, listen, proto := p.socket(ip)

	conn, err := icmp.ListenPacket(network, listen)
	if err != nil {
		p.Logger.Debug("ping_listen_failed", zap.String("network", network), zap.Error(err))
		return false
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	deadline := time.Now().Add(p.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return false
	}

	seq := int(p.seq.Add(1) & 0xffff)
	id := os.Getpid() & 0xffff
	msg := icmp.Message{
		Type: echoRequest(ip),
		Body: &icmp.Echo{ID: id, Seq: seq, Data: []byte("servermon")},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return false
	}
	if _, err := conn.WriteTo(wb, p.destination(ip)); err != nil {
		p.Logger.Debug("ping_write_failed", zap.String("ip", ip.String()), zap.Error(err))
		return false
	}

	rb := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			return false
		}
		if !samePeer(peer, ip) {
			continue
		}
		reply, err := icmp.ParseMessage(proto, rb[:n])
		if err != nil || reply.Type != echoReply(ip) {
			continue
		}
		echo, ok := reply.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq {
			continue
		}
		// the kernel rewrites the identifier on datagram sockets
		if p.Privileged && echo.ID != id {
			continue
		}
		return true
	}
}

func (p *ICMPPinger) timeout() time.Duration {
	if p.Timeout <= 0 {
		return DefaultPingTimeout
	}
	return p.Timeout
}

func (p *ICMPPinger) socket(ip netip.Addr) (network, listen string, proto int) {
	if ip.Is4() {
		if p.Privileged {
			return "ip4:icmp", "0.0.0.0", protocolICMP
		}
		return "udp4", "0.0.0.0", protocolICMP
	}
	if p.Privileged {
		return "ip6:ipv6-icmp", "::", protocolIPv6ICMP
	}
	return "udp6", "::", protocolIPv6ICMP
}

func (p *ICMPPinger) destination(ip netip.Addr) net.Addr {
	if p.Privileged {
		return &net.IPAddr{IP: ip.AsSlice(), Zone: ip.Zone()}
	}
	return &net.UDPAddr{IP: ip.AsSlice(), Zone: ip.Zone()}
}

func echoRequest(ip netip.Addr) icmp.Type {
	if ip.Is4() {
		return ipv4.ICMPTypeEcho
	}
	return ipv6.ICMPTypeEchoRequest
}

func echoReply(ip netip.Addr) icmp.Type {
	if ip.Is4() {
		return ipv4.ICMPTypeEchoReply
	}
	return ipv6.ICMPTypeEchoReply
}

func samePeer(peer net.Addr, ip netip.Addr) bool {
	var raw net.IP
	switch a := peer.(type) {
	case *net.IPAddr:
		raw = a.IP
	case *net.UDPAddr:
		raw = a.IP
	default:
		return false
	}
	got, ok := netip.AddrFromSlice(raw)
	return ok && got.Unmap() == ip.WithZone("")
}
