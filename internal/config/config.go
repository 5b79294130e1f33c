// Package config loads engine settings for go-motion commands.
//
// Settings start from Default, are overlaid by an optional INI file and
// finally by environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/ini.v1"

	"github.com/teslashibe/go-motion/pkg/constraint"
	"github.com/teslashibe/go-motion/pkg/controller"
	"github.com/teslashibe/go-motion/pkg/driver"
	"github.com/teslashibe/go-motion/pkg/inspect"
)

// Default values not owned by a package Config.
const (
	DefaultLogLevel     = "info"
	DefaultFetchTimeout = 10 * time.Second
	DefaultPprofAddr    = "localhost:18066"
	DefaultEnvironment  = "development"
)

// Solver holds constraint solver limits.
type Solver struct {
	MaxIterations int
	MinIterations int
}

// Assets locates clip data. Dir wins over URL when both are set.
type Assets struct {
	Dir          string
	URL          string
	FetchTimeout time.Duration
}

// Report configures crash reporting.
type Report struct {
	DSN         string
	Environment string
}

// Config is the full set of engine settings.
type Config struct {
	LogLevel   string
	Pprof      bool
	PprofAddr  string
	Controller controller.Config
	Solver     Solver
	Driver     driver.Config
	Assets     Assets
	Inspect    inspect.Config
	Report     Report
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel:   DefaultLogLevel,
		PprofAddr:  DefaultPprofAddr,
		Controller: controller.DefaultConfig(),
		Solver:     Solver{MaxIterations: constraint.MaxIterations, MinIterations: constraint.MinIterations},
		Driver:     driver.DefaultConfig(),
		Assets:     Assets{FetchTimeout: DefaultFetchTimeout},
		Inspect:    inspect.DefaultConfig(),
		Report:     Report{Environment: DefaultEnvironment},
	}
}

// Load reads path over the defaults and then applies the environment.
// An empty path or a missing file is not an error.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := c.LoadFile(path); err != nil {
				return c, err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return c, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := c.ApplyEnv(); err != nil {
		return c, err
	}
	return c, nil
}

// LoadFile overlays the INI file at path. Keys that are absent keep their
// current value.
func (c *Config) LoadFile(path string) error {
	f, err := ini.LoadSources(ini.LoadOptions{
		SkipUnrecognizableLines: true,
		AllowShadows:            false,
	}, path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	c.apply(f)
	return nil
}

func (c *Config) apply(f *ini.File) {
	root := f.Section(ini.DefaultSection)
	c.LogLevel = root.Key("log_level").MustString(c.LogLevel)
	c.Pprof = root.Key("pprof").MustBool(c.Pprof)
	c.PprofAddr = root.Key("pprof_addr").MustString(c.PprofAddr)

	s := f.Section("controller")
	c.Controller.TimeStep = float32(s.Key("time_step").MustFloat64(float64(c.Controller.TimeStep)))
	c.Controller.MaxInstances = s.Key("max_instances").MustInt(c.Controller.MaxInstances)
	c.Controller.SkipClaimed = s.Key("skip_claimed").MustBool(c.Controller.SkipClaimed)
	c.Controller.FadeTimeConstant = float32(s.Key("fade_time_constant").MustFloat64(float64(c.Controller.FadeTimeConstant)))

	s = f.Section("solver")
	c.Solver.MaxIterations = s.Key("max_iterations").MustInt(c.Solver.MaxIterations)
	c.Solver.MinIterations = s.Key("min_iterations").MustInt(c.Solver.MinIterations)

	s = f.Section("driver")
	c.Driver.Rate = s.Key("rate").MustDuration(c.Driver.Rate)
	c.Driver.HeartbeatEvery = s.Key("heartbeat").MustUint64(c.Driver.HeartbeatEvery)

	s = f.Section("assets")
	c.Assets.Dir = s.Key("dir").MustString(c.Assets.Dir)
	c.Assets.URL = s.Key("url").MustString(c.Assets.URL)
	c.Assets.FetchTimeout = s.Key("fetch_timeout").MustDuration(c.Assets.FetchTimeout)

	s = f.Section("inspect")
	c.Inspect.Addr = s.Key("addr").MustString(c.Inspect.Addr)
	c.Inspect.PoseEvery = s.Key("pose_every").MustUint64(c.Inspect.PoseEvery)
	c.Inspect.CORS = s.Key("cors").MustBool(c.Inspect.CORS)

	s = f.Section("report")
	c.Report.DSN = s.Key("dsn").MustString(c.Report.DSN)
	c.Report.Environment = s.Key("environment").MustString(c.Report.Environment)
}

// ApplyEnv overrides settings from MOTION_* variables and SENTRY_DSN.
func (c *Config) ApplyEnv() error {
	c.LogLevel = Env("MOTION_LOG_LEVEL", c.LogLevel)
	c.Assets.Dir = Env("MOTION_ASSET_DIR", c.Assets.Dir)
	c.Assets.URL = Env("MOTION_ASSET_URL", c.Assets.URL)
	c.Report.DSN = Env("SENTRY_DSN", c.Report.DSN)

	if v := os.Getenv("MOTION_TIME_STEP"); v != "" {
		step, err := strconv.ParseFloat(v, 32)
		if err != nil || step < 0 {
			return fmt.Errorf("MOTION_TIME_STEP: invalid value %q", v)
		}
		c.Controller.TimeStep = float32(step)
	}
	if v := os.Getenv("MOTION_INSPECT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("MOTION_INSPECT_PORT: invalid port %q", v)
		}
		c.Inspect.Addr = fmt.Sprintf(":%d", port)
	}
	if v := os.Getenv("MOTION_PPROF"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MOTION_PPROF: invalid value %q", v)
		}
		c.Pprof = on
	}
	return nil
}

// Env returns the value of key, or def when it is unset or empty.
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
