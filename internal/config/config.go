package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/hamed0406/servermon/internal/domain"
	"github.com/hamed0406/servermon/internal/persist"
)

type Config struct {
	Addr       string `yaml:"addr"`    // API bind address, e.g. "127.0.0.1:8080"
	LogDir     string `yaml:"log_dir"` // logs directory
	LogLevel   string `yaml:"log_level"`
	LogConsole bool   `yaml:"log_console"`

	StatePath  string `yaml:"state_path"` // empty means ~/.servermon.cfg
	SaveOnExit bool   `yaml:"save_on_exit"`

	IntervalSecs   uint64 `yaml:"interval_secs"` // 0 disables automatic passes
	TickMS         int    `yaml:"tick_ms"`
	PortTimeoutMS  int    `yaml:"port_timeout_ms"`
	PingTimeoutMS  int    `yaml:"ping_timeout_ms"`
	PingPrivileged bool   `yaml:"ping_privileged"` // raw ICMP sockets instead of datagram ones
	Concurrency    int    `yaml:"concurrency"` // endpoints probed at once; 0 means all

	PublicAPIKeys  []string `yaml:"public_api_keys"` // read-only routes
	AdminAPIKeys   []string `yaml:"admin_api_keys"`  // mutating routes
	AllowedOrigins []string `yaml:"allowed_origins"`
	CheckRPM       int      `yaml:"check_rpm"`
	CheckBurst     int      `yaml:"check_burst"`

	// Seed list used when no state file exists yet.
	Endpoints []SeedEndpoint `yaml:"endpoints"`
}

// MaxIntervalSecs is the largest interval that fits a time.Duration.
const MaxIntervalSecs = uint64(math.MaxInt64) / uint64(time.Second)

type SeedEndpoint struct {
	Name  string   `yaml:"name"`
	IP    string   `yaml:"ip"`
	Ports []uint16 `yaml:"ports"`
}

func Default() Config {
	return Config{
		Addr:           "127.0.0.1:8080",
		LogDir:         "logs",
		LogLevel:       "info",
		SaveOnExit:     true,
		IntervalSecs:   600,
		TickMS:         1000,
		PortTimeoutMS:  500,
		PingTimeoutMS:  1000,
		AllowedOrigins: []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		CheckRPM:       30,
		CheckBurst:     5,
	}
}

// Load reads the YAML file at path over the defaults, then applies
// SERVERMON_* environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if cfg.StatePath == "" {
		p, err := persist.DefaultPath()
		if err != nil {
			return Config{}, err
		}
		cfg.StatePath = p
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs error

	if v := os.Getenv("SERVERMON_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("SERVERMON_LOG_DIR"); v != "" {
		c.LogDir = v
	}
	if v := os.Getenv("SERVERMON_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SERVERMON_STATE_PATH"); v != "" {
		c.StatePath = v
	}
	if v := os.Getenv("SERVERMON_INTERVAL_SECS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("SERVERMON_INTERVAL_SECS: %w", err))
		} else {
			c.IntervalSecs = n
		}
	}
	errs = multierr.Append(errs, envInt("SERVERMON_PORT_TIMEOUT_MS", &c.PortTimeoutMS))
	errs = multierr.Append(errs, envInt("SERVERMON_PING_TIMEOUT_MS", &c.PingTimeoutMS))
	errs = multierr.Append(errs, envInt("SERVERMON_CONCURRENCY", &c.Concurrency))
	errs = multierr.Append(errs, envBool("SERVERMON_PING_PRIVILEGED", &c.PingPrivileged))
	errs = multierr.Append(errs, envBool("SERVERMON_SAVE_ON_EXIT", &c.SaveOnExit))
	errs = multierr.Append(errs, envBool("SERVERMON_LOG_CONSOLE", &c.LogConsole))

	if v, ok := os.LookupEnv("SERVERMON_PUBLIC_API_KEYS"); ok {
		c.PublicAPIKeys = splitList(v)
	}
	if v, ok := os.LookupEnv("SERVERMON_ADMIN_API_KEYS"); ok {
		c.AdminAPIKeys = splitList(v)
	}
	if v, ok := os.LookupEnv("SERVERMON_ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = splitList(v)
	}
	return errs
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs error
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("addr %q: %w", c.Addr, err))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.TickMS <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("tick_ms must be positive, got %d", c.TickMS))
	}
	if c.PortTimeoutMS <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("port_timeout_ms must be positive, got %d", c.PortTimeoutMS))
	}
	if c.PingTimeoutMS <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("ping_timeout_ms must be positive, got %d", c.PingTimeoutMS))
	}
	if c.IntervalSecs > MaxIntervalSecs {
		errs = multierr.Append(errs, fmt.Errorf("interval_secs %d out of range (max %d)", c.IntervalSecs, MaxIntervalSecs))
	}
	if c.Concurrency < 0 {
		errs = multierr.Append(errs, fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency))
	}
	if c.CheckRPM < 0 || c.CheckBurst < 0 {
		errs = multierr.Append(errs, errors.New("check_rpm and check_burst must not be negative"))
	}
	for i, e := range c.Endpoints {
		if _, err := domain.ValidateAddress(e.IP); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("endpoints[%d] %q: %w", i, e.Name, err))
		}
	}
	return errs
}

func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSecs) * time.Second
}

func (c Config) Tick() time.Duration {
	return time.Duration(c.TickMS) * time.Millisecond
}

func (c Config) PortTimeout() time.Duration {
	return time.Duration(c.PortTimeoutMS) * time.Millisecond
}

func (c Config) PingTimeout() time.Duration {
	return time.Duration(c.PingTimeoutMS) * time.Millisecond
}
