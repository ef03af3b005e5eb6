package httpapi

import (
	"time"

	"github.com/hamed0406/servermon/internal/domain"
	"github.com/hamed0406/servermon/internal/monitor"
)

const (
	portOpen    = "OPEN"
	portClosed  = "CLOSED"
	portUnknown = "UNKNOWN" // never checked
)

type portView struct {
	Port  uint16 `json:"port"`
	State string `json:"state"`
}

type endpointView struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	IP             string     `json:"ip"`
	Ports          []uint16   `json:"ports"`
	IsReachable    bool       `json:"is_reachable"`
	OpenPorts      []uint16   `json:"open_ports"`
	LastChecked    *time.Time `json:"last_checked"`
	CheckedAgoSecs *int64     `json:"checked_ago_secs,omitempty"`
	PortStates     []portView `json:"port_states"`
}

func newEndpointView(e domain.Endpoint, now time.Time) endpointView {
	v := endpointView{
		ID:          string(e.ID),
		Name:        e.Name,
		IP:          e.Address,
		Ports:       nonNil(e.Ports),
		IsReachable: e.Status.Reachable,
		OpenPorts:   nonNil(e.Status.OpenPorts),
		LastChecked: e.Status.LastChecked,
		PortStates:  make([]portView, 0, len(e.Ports)),
	}
	if e.Status.Checked() {
		ago := int64(now.Sub(*e.Status.LastChecked) / time.Second)
		if ago < 0 {
			ago = 0
		}
		v.CheckedAgoSecs = &ago
	}
	for _, p := range e.Ports {
		state := portUnknown
		if e.Status.Checked() {
			state = portClosed
			if e.Status.IsOpen(p) {
				state = portOpen
			}
		}
		v.PortStates = append(v.PortStates, portView{Port: p, State: state})
	}
	return v
}

func nonNil(p []uint16) []uint16 {
	if p == nil {
		return []uint16{}
	}
	return p
}

type policyView struct {
	RefreshIntervalSecs uint64    `json:"refresh_interval_secs"`
	Enabled             bool      `json:"enabled"`
	LastRun             time.Time `json:"last_run"`
	RemainingSecs       uint64    `json:"remaining_secs"`
	State               string    `json:"state"`
}

func newPolicyView(p monitor.PolicyView) policyView {
	return policyView{
		RefreshIntervalSecs: uint64(p.Interval / time.Second),
		Enabled:             p.Enabled,
		LastRun:             p.LastRun,
		RemainingSecs:       uint64(p.Remaining / time.Second),
		State:               p.State.String(),
	}
}
