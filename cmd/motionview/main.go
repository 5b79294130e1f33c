// Command motionview drives a set of demo characters and serves the
// inspection API and pose stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-echarts/statsview"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-echarts/statsview/viewer"

	"github.com/teslashibe/go-motion/internal/config"
	"github.com/teslashibe/go-motion/internal/httpc"
	"github.com/teslashibe/go-motion/internal/log"
	"github.com/teslashibe/go-motion/internal/report"
	"github.com/teslashibe/go-motion/pkg/asset"
	"github.com/teslashibe/go-motion/pkg/character"
	"github.com/teslashibe/go-motion/pkg/clip"
	"github.com/teslashibe/go-motion/pkg/constraint"
	"github.com/teslashibe/go-motion/pkg/controller"
	"github.com/teslashibe/go-motion/pkg/driver"
	"github.com/teslashibe/go-motion/pkg/inspect"
	"github.com/teslashibe/go-motion/pkg/motion"
	"github.com/teslashibe/go-motion/pkg/skeleton"
)

// Version is set at build time.
var Version = "dev"

func main() {
	configPath := flag.String("config", config.Env("MOTION_CONFIG", "motion.ini"), "INI config file")
	characters := flag.Int("characters", 1, "Number of demo characters")
	autoplay := flag.String("play", idleName, "Clip name or id started on every character (empty for none)")
	walkSpeed := flag.Float64("walk-speed", motion.WalkReferenceSpeed, "Ground speed of demo characters, in m/s")
	pprof := flag.Bool("pprof", false, "Serve runtime stats (statsview)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	cfg.Pprof = cfg.Pprof || *pprof

	log.Init(cfg.LogLevel)
	if err := report.Init(cfg.Report.DSN, cfg.Report.Environment, Version); err != nil {
		log.Warn("crash reporting disabled", "error", err)
	}
	defer report.Flush()

	if err := run(cfg, *characters, *autoplay, float32(*walkSpeed)); err != nil {
		log.Error("motionview stopped", "error", err)
		report.Flush()
		os.Exit(1)
	}
}

func run(cfg config.Config, characters int, autoplay string, walkSpeed float32) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	constraint.SetIterationLimits(cfg.Solver.MaxIterations, cfg.Solver.MinIterations)

	cache := clip.Shared
	cache.Add(idleClip()).Release()

	fetcher, dir, err := openAssets(cfg.Assets)
	if err != nil {
		return err
	}
	src := &motion.Source{Fetcher: fetcher, Cache: cache, Timeout: cfg.Assets.FetchTimeout}
	reg := motion.NewRegistry(src.Keyframe)
	if err := motion.RegisterWalkAdjust(reg); err != nil {
		return err
	}

	resolve := func(name string) (clip.ID, bool) {
		switch name {
		case idleName:
			return idleID, true
		case walkAdjustName:
			return motion.WalkAdjustID, true
		}
		if dir != nil {
			if id, ok := dir.Lookup(name); ok {
				return id, true
			}
		}
		return controller.ParseEmote(name)
	}
	walks := 0
	if dir != nil {
		for _, e := range dir.Entries() {
			if e.Kind != asset.KindWalk {
				continue
			}
			if err := reg.Register(e.ID, src.Walk); err != nil {
				log.Warn("walk clip not registered", "name", e.Name, "error", err)
				continue
			}
			walks++
		}
	}

	drv := driver.New(cfg.Driver)
	for i := 0; i < characters; i++ {
		id := fmt.Sprintf("avatar-%d", i+1)
		ch := character.NewStatic(skeleton.Humanoid())
		ch.Vel = mgl32.Vec3{walkSpeed, 0, 0}
		ctl := controller.New(ch, reg, cfg.Controller)
		ctl.SetEmoteResolver(resolve)
		ctl.SetSink(character.SinkFunc(func(c clip.ID) {
			log.Debug("motion auto-stopped", "character", id, "clip", c)
		}))
		if err := drv.Add(id, ctl); err != nil {
			return err
		}
	}

	srv := inspect.New(drv, cache, cfg.Inspect)
	srv.SetResolver(resolve)

	if autoplay != "" {
		for _, id := range drv.Characters() {
			if err := startClip(drv, resolve, id, autoplay); err != nil {
				log.Warn("autoplay failed", "character", id, "clip", autoplay, "error", err)
			}
		}
	}

	// Gait clips follow ground speed only while the publisher runs.
	if walks > 0 {
		for _, id := range drv.Characters() {
			if err := startClip(drv, resolve, id, walkAdjustName); err != nil {
				log.Warn("walk speed publisher not started", "character", id, "error", err)
			}
		}
	}

	if cfg.Pprof {
		viewer.SetConfiguration(viewer.WithTheme(viewer.ThemeWesteros), viewer.WithAddr(cfg.PprofAddr))
		mgr := statsview.New()
		go mgr.Start()
		defer mgr.Stop()
		log.Info("runtime stats enabled", "addr", "http://"+cfg.PprofAddr+"/debug/statsview")
	}

	errc := make(chan error, 2)
	go func() { errc <- drv.Run(ctx) }()
	go func() { errc <- srv.Start() }()

	log.Info("motionview running",
		"version", Version,
		"characters", characters,
		"inspect", cfg.Inspect.Addr,
		"rate", cfg.Driver.Rate,
	)

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errc:
	}
	drv.Stop()
	if serr := srv.Shutdown(); serr != nil {
		log.Warn("inspector shutdown", "error", serr)
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// openAssets picks the clip source: a directory, an HTTP base URL or, with
// neither, an empty in-memory store.
func openAssets(cfg config.Assets) (asset.Fetcher, *asset.Dir, error) {
	switch {
	case cfg.Dir != "":
		d, err := asset.NewDir(cfg.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("asset dir: %w", err)
		}
		log.Info("serving clips from directory", "dir", cfg.Dir, "named", len(d.Entries()))
		return d, d, nil
	case cfg.URL != "":
		log.Info("serving clips over http", "url", cfg.URL)
		return asset.NewHTTP(cfg.URL, httpc.NewClient(cfg.FetchTimeout)), nil, nil
	default:
		log.Info("no asset source configured, built-in clips only")
		return asset.NewMemory(), nil, nil
	}
}

func startClip(drv *driver.Driver, resolve inspect.Resolver, character, name string) error {
	id, ok := resolve(name)
	if !ok {
		return fmt.Errorf("unknown clip %q", name)
	}
	return drv.Do(character, func(c *controller.Controller) error {
		if !c.StartMotion(id, 0) {
			return fmt.Errorf("clip %s cannot be played", id)
		}
		return nil
	})
}
