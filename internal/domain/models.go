package domain

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInvalidAddress = errors.New("invalid ip address")
	ErrNotFound       = errors.New("endpoint not found")
)

// EndpointID is an opaque identifier assigned when an endpoint is created.
// Check results are correlated by ID, never by list position.
type EndpointID string

func NewEndpointID() EndpointID {
	return EndpointID(uuid.NewString())
}

// Endpoint is one monitored target. Name, Address and Ports change only
// through user edits; Status is written only by the checker.
type Endpoint struct {
	ID      EndpointID `json:"id"`
	Name    string     `json:"name"`
	Address string     `json:"ip"`
	Ports   []uint16   `json:"ports"`
	Status  Status     `json:"status"`
}

func NewEndpoint(name, address string, ports []uint16) Endpoint {
	return Endpoint{
		ID:      NewEndpointID(),
		Name:    name,
		Address: address,
		Ports:   NormalizePorts(ports),
		Status:  Status{OpenPorts: []uint16{}},
	}
}

// Clone returns a copy that shares no slices with e.
func (e Endpoint) Clone() Endpoint {
	out := e
	out.Ports = append([]uint16(nil), e.Ports...)
	out.Status = e.Status.Clone()
	return out
}

func (e Endpoint) HasPort(port uint16) bool {
	i := sort.Search(len(e.Ports), func(i int) bool { return e.Ports[i] >= port })
	return i < len(e.Ports) && e.Ports[i] == port
}

// ValidateAddress parses an IPv4 or IPv6 literal. Host names are rejected.
func ValidateAddress(address string) (netip.Addr, error) {
	ip, err := netip.ParseAddr(address)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return ip, nil
}

// NormalizePorts returns a sorted copy of ports without duplicates.
// The result is never nil so it encodes as [] rather than null.
func NormalizePorts(ports []uint16) []uint16 {
	out := make([]uint16, 0, len(ports))
	out = append(out, ports...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	n := 0
	for i, p := range out {
		if i > 0 && p == out[n-1] {
			continue
		}
		out[n] = p
		n++
	}
	return out[:n]
}

// ParsePorts reads a comma separated port list such as "443, 22,80".
// Tokens that are not valid 16-bit port numbers are skipped.
func ParsePorts(raw string) []uint16 {
	var ports []uint16
	for _, tok := range strings.Split(raw, ",") {
		n, err := strconv.ParseUint(strings.TrimSpace(tok), 10, 16)
		if err != nil {
			continue
		}
		ports = append(ports, uint16(n))
	}
	return NormalizePorts(ports)
}

// FormatPorts is the inverse of ParsePorts.
func FormatPorts(ports []uint16) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.FormatUint(uint64(p), 10)
	}
	return strings.Join(parts, ",")
}
