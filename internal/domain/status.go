package domain

import "time"

// Status is the outcome of the most recent check pass for an endpoint.
// The three fields are always replaced together.
type Status struct {
	LastChecked *time.Time `json:"last_checked"` // nil until the first pass
	Reachable   bool       `json:"is_reachable"`
	OpenPorts   []uint16   `json:"open_ports"`
}

func (s Status) Checked() bool { return s.LastChecked != nil }

func (s Status) IsOpen(port uint16) bool {
	for _, p := range s.OpenPorts {
		if p == port {
			return true
		}
	}
	return false
}

func (s Status) Clone() Status {
	out := s
	if s.LastChecked != nil {
		t := *s.LastChecked
		out.LastChecked = &t
	}
	out.OpenPorts = append(make([]uint16, 0, len(s.OpenPorts)), s.OpenPorts...)
	return out
}

// Restrict drops open ports that are not in ports (which must be sorted).
func (s Status) Restrict(ports []uint16) Status {
	ref := Endpoint{Ports: ports}
	out := s.Clone()
	kept := out.OpenPorts[:0]
	for _, p := range out.OpenPorts {
		if ref.HasPort(p) {
			kept = append(kept, p)
		}
	}
	out.OpenPorts = kept
	return out
}

// RefreshPolicy controls automatic check passes. A zero Interval disables them.
type RefreshPolicy struct {
	Interval time.Duration
	LastRun  time.Time
}

func (p RefreshPolicy) Enabled() bool { return p.Interval > 0 }

// Due reports whether an automatic pass should start at now.
func (p RefreshPolicy) Due(now time.Time) bool {
	return p.Enabled() && now.Sub(p.LastRun) >= p.Interval
}

// Remaining is the display-only time left until the next automatic pass.
func (p RefreshPolicy) Remaining(now time.Time) time.Duration {
	if !p.Enabled() {
		return 0
	}
	left := p.Interval - now.Sub(p.LastRun)
	if left < 0 {
		return 0
	}
	return left
}
