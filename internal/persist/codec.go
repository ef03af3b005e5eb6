package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/servermon/internal/domain"
)

// Document is the persisted form. Status fields are never written; every
// import starts from unchecked endpoints.
type Document struct {
	Servers             []Server `json:"servers"`
	RefreshIntervalSecs uint64   `json:"refresh_interval_secs"`
}

type Server struct {
	Name  string   `json:"name"`
	IP    string   `json:"ip"`
	Ports []uint16 `json:"ports"`
}

var ErrMalformed = errors.New("malformed state")

// Encode renders endpoints and the refresh interval (whole seconds) as
// indented JSON with ports in ascending order.
func Encode(endpoints []domain.Endpoint, interval time.Duration) ([]byte, error) {
	if interval < 0 {
		interval = 0
	}
	doc := Document{
		Servers:             make([]Server, 0, len(endpoints)),
		RefreshIntervalSecs: uint64(interval / time.Second),
	}
	for _, e := range endpoints {
		doc.Servers = append(doc.Servers, Server{
			Name:  e.Name,
			IP:    e.Address,
			Ports: domain.NormalizePorts(e.Ports),
		})
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return b, nil
}

type rawDocument struct {
	Servers             *[]rawServer `json:"servers"`
	RefreshIntervalSecs *uint64      `json:"refresh_interval_secs"`
}

type rawServer struct {
	Name  *string   `json:"name"`
	IP    *string   `json:"ip"`
	Ports *[]uint16 `json:"ports"`
}

// Decode parses a persisted document. Every field is required. Endpoints get
// fresh IDs and empty status. Addresses are not validated here: an invalid
// address is kept and simply never checks as reachable.
func Decode(data []byte) ([]domain.Endpoint, time.Duration, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var errs error
	if raw.Servers == nil {
		errs = multierr.Append(errs, errors.New("missing field servers"))
	}
	if raw.RefreshIntervalSecs == nil {
		errs = multierr.Append(errs, errors.New("missing field refresh_interval_secs"))
	} else if *raw.RefreshIntervalSecs > math.MaxInt64/uint64(time.Second) {
		errs = multierr.Append(errs, fmt.Errorf("refresh_interval_secs %d out of range", *raw.RefreshIntervalSecs))
	}

	var endpoints []domain.Endpoint
	if raw.Servers != nil {
		endpoints = make([]domain.Endpoint, 0, len(*raw.Servers))
		for i, s := range *raw.Servers {
			if s.Name == nil {
				errs = multierr.Append(errs, fmt.Errorf("servers[%d]: missing field name", i))
			}
			if s.IP == nil {
				errs = multierr.Append(errs, fmt.Errorf("servers[%d]: missing field ip", i))
			}
			if s.Ports == nil {
				errs = multierr.Append(errs, fmt.Errorf("servers[%d]: missing field ports", i))
			}
			if s.Name == nil || s.IP == nil || s.Ports == nil {
				continue
			}
			endpoints = append(endpoints, domain.NewEndpoint(*s.Name, *s.IP, *s.Ports))
		}
	}
	if errs != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, errs)
	}
	return endpoints, time.Duration(*raw.RefreshIntervalSecs) * time.Second, nil
}
