package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"

	"github.com/teslashibe/go-motion/pkg/clip"
)

func runInfo(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("info: expected one clip file")
	}
	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	c, err := clip.Decode(idFromPath(path), data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	printClip(w, c)
	return nil
}

// idFromPath uses the file name as the clip id when it is one.
func idFromPath(path string) clip.ID {
	id, err := uuid.Parse(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func printClip(w io.Writer, c *clip.Clip) {
	fmt.Fprintf(w, "id:        %s\n", c.ID)
	fmt.Fprintf(w, "digest:    %016x\n", c.Digest)
	fmt.Fprintf(w, "duration:  %.3fs\n", c.Duration)
	fmt.Fprintf(w, "priority:  %s (max %s)\n", c.BasePriority, c.MaxPriority)
	fmt.Fprintf(w, "ease:      in %.3fs out %.3fs\n", c.EaseIn, c.EaseOut)
	if c.Loop {
		fmt.Fprintf(w, "loop:      %.3fs .. %.3fs\n", c.LoopIn, c.LoopOut)
	} else {
		fmt.Fprintln(w, "loop:      no")
	}
	fmt.Fprintf(w, "hand pose: %s\n", c.HandPose)
	if c.EmoteName != "" {
		fmt.Fprintf(w, "emote:     %s\n", c.EmoteName)
	}

	fmt.Fprintf(w, "\njoints (%d):\n", len(c.Joints))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  NAME\tPRIORITY\tROT\tPOS\tSCALE")
	for i := range c.Joints {
		t := &c.Joints[i]
		fmt.Fprintf(tw, "  %s\t%s\t%d\t%d\t%d\n", t.Name, c.JointPriority(t), t.Rotation.Len(), t.Position.Len(), t.Scale.Len())
	}
	tw.Flush()

	if len(c.Constraints) == 0 {
		return
	}
	fmt.Fprintf(w, "\nconstraints (%d):\n", len(c.Constraints))
	for _, d := range c.Constraints {
		target := d.TargetVolume
		if d.TargetType == clip.TargetGround {
			target = clip.GroundVolume
		}
		fmt.Fprintf(w, "  %s -> %s chain %d ease %.2f-%.2f / %.2f-%.2f\n",
			d.SourceVolume, target, d.ChainLength,
			d.EaseInStart, d.EaseInStop, d.EaseOutStart, d.EaseOutStop)
	}
}
