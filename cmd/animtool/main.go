// Command animtool inspects, converts and catalogues animation clips.
//
// Usage:
//
//	animtool info <file.anim>
//	animtool gltf [flags] <in.glb> <out.anim>
//	animtool manifest [flags] <manifest.json> <name> <file>
package main

import (
	"fmt"
	"os"

	"github.com/teslashibe/go-motion/internal/log"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: animtool <info|gltf|manifest> [flags] args...")
	fmt.Fprintln(os.Stderr, "  info <file.anim>                        print a clip summary")
	fmt.Fprintln(os.Stderr, "  gltf <in.glb> <out.anim>                convert a glTF animation")
	fmt.Fprintln(os.Stderr, "  manifest <manifest.json> <name> <file>  add or update a manifest entry")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	log.Init(os.Getenv("MOTION_LOG_LEVEL"))

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "info":
		err = runInfo(os.Stdout, args)
	case "gltf":
		err = runGLTF(args)
	case "manifest":
		err = runManifest(os.Stdout, args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "animtool: %v\n", err)
		os.Exit(1)
	}
}
