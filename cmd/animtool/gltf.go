package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/teslashibe/go-motion/internal/log"
	"github.com/teslashibe/go-motion/pkg/clip"
	"github.com/teslashibe/go-motion/pkg/skeleton"
)

func runGLTF(args []string) error {
	opts := clip.DefaultImportOptions()

	fs := flag.NewFlagSet("gltf", flag.ContinueOnError)
	anim := fs.Int("anim", 0, "Animation index")
	id := fs.String("id", "", "Clip id (default: random)")
	prio := fs.Int("priority", int(opts.Priority), "Base priority 0-4")
	loop := fs.Bool("loop", false, "Loop the clip")
	easeIn := fs.Float64("ease-in", float64(opts.EaseIn), "Ease in seconds")
	easeOut := fs.Float64("ease-out", float64(opts.EaseOut), "Ease out seconds")
	yUp := fs.Bool("keep-axes", false, "Keep glTF Y-up axes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("gltf: expected <in.glb> <out.anim>")
	}
	if *prio < int(skeleton.Low) || *prio > int(skeleton.Highest) {
		return fmt.Errorf("gltf: priority %d out of range", *prio)
	}
	if *id != "" {
		parsed, err := uuid.Parse(*id)
		if err != nil {
			return fmt.Errorf("gltf: bad id: %w", err)
		}
		opts.ID = parsed
	}
	opts.Priority = skeleton.Priority(*prio)
	opts.Loop = *loop
	opts.EaseIn = float32(*easeIn)
	opts.EaseOut = float32(*easeOut)
	opts.ConvertAxes = !*yUp

	in, out := fs.Arg(0), fs.Arg(1)
	f, err := os.Open(in)
	if err != nil {
		return err
	}
	defer f.Close()
	doc, err := clip.ReadGLTF(f)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}
	c, err := clip.FromGLTF(doc, *anim, opts)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}
	data, err := clip.Encode(c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	log.Info("clip written", "id", c.ID, "joints", len(c.Joints), "duration", c.Duration, "bytes", len(data), "path", out)
	return nil
}
