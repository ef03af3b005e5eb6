// cmd/preflight/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/servermon/internal/checker"
	"github.com/hamed0406/servermon/internal/config"
	"github.com/hamed0406/servermon/internal/domain"
	"github.com/hamed0406/servermon/internal/persist"
	"github.com/hamed0406/servermon/internal/probe"
	"github.com/hamed0406/servermon/internal/repo/memory"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("SERVERMON_CONFIG"), "path to YAML config (optional)")
	runProbe := flag.Bool("probe", false, "run one check pass against the configured endpoints")
	flag.Parse()

	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fail(err.Error())
	}
	if err := cfg.Validate(); err != nil {
		for _, e := range multierr.Errors(err) {
			fmt.Fprintln(os.Stderr, "✖", e)
		}
		os.Exit(1)
	}
	ok("config valid, addr=" + cfg.Addr)

	if len(cfg.AdminAPIKeys) == 0 {
		warn("no admin_api_keys: mutating routes are open to anyone who can reach " + cfg.Addr)
	}
	if len(cfg.PublicAPIKeys) == 0 && len(cfg.AdminAPIKeys) == 0 {
		warn("no API keys at all: read routes are open too")
	}
	if len(cfg.AllowedOrigins) == 0 {
		warn("allowed_origins empty: browser will be blocked by CORS for cross-origin requests.")
	}
	if cfg.IntervalSecs == 0 {
		warn("interval_secs is 0: automatic refresh disabled, checks run only on demand")
	}

	state := persist.File{Path: cfg.StatePath}
	endpoints, interval, err := state.Load()
	switch {
	case errors.Is(err, os.ErrNotExist):
		warn(fmt.Sprintf("no state file at %s; %d seed endpoint(s) from config will be used", cfg.StatePath, len(cfg.Endpoints)))
		for _, s := range cfg.Endpoints {
			endpoints = append(endpoints, domain.NewEndpoint(s.Name, s.IP, s.Ports))
		}
	case err != nil:
		fail(err.Error())
	default:
		ok(fmt.Sprintf("state file %s: %d endpoint(s), refresh %s", cfg.StatePath, len(endpoints), interval))
	}

	if *runProbe {
		probeAll(cfg, endpoints, ok, warn)
	}

	ok("preflight passed")
}

func probeAll(cfg config.Config, endpoints []domain.Endpoint, ok, warn func(string)) {
	store := memory.New()
	ctx := context.Background()
	for i := range endpoints {
		e := endpoints[i]
		if err := store.Add(ctx, &e); err != nil {
			warn(err.Error())
		}
	}

	logger := zap.NewNop()
	pinger := probe.NewICMPPinger(logger, cfg.PingPrivileged, cfg.PingTimeout())
	chk := checker.New(logger, probe.NewProber(logger, pinger, cfg.PortTimeout(), cfg.PingTimeout()), cfg.Concurrency)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	sum, err := chk.Pass(ctx, store)
	if err != nil {
		warn("probe pass: " + err.Error())
		return
	}

	all, _ := store.List(ctx)
	for _, e := range all {
		line := fmt.Sprintf("%s (%s) open=%s", e.Name, e.Address, domain.FormatPorts(e.Status.OpenPorts))
		if e.Status.Reachable {
			ok(line)
		} else {
			warn(line + " unreachable")
		}
	}
	ok(fmt.Sprintf("probed %d endpoint(s), %d reachable, took %s",
		sum.Probed, sum.Reachable, sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond)))
}
