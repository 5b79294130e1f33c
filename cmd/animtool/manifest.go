package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/teslashibe/go-motion/pkg/asset"
	"github.com/teslashibe/go-motion/pkg/clip"
)

func runManifest(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("manifest", flag.ContinueOnError)
	kind := fs.String("kind", asset.KindKeyframe, "Motion kind (keyframe or walk)")
	newID := fs.Bool("new-id", false, "Assign a fresh id to an existing entry")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 3 {
		return errors.New("manifest: expected <manifest.json> <name> <file>")
	}
	path, name, file := fs.Arg(0), fs.Arg(1), fs.Arg(2)

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	out, id, err := setEntry(data, asset.Entry{Name: name, File: file, Kind: *kind}, *newID)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\t%s\n", name, id)
	return nil
}

// setEntry adds or updates the manifest entry named e.Name and returns the
// new document with the entry's id. Existing entries keep their id unless
// renew is set. Unknown fields are preserved.
func setEntry(data []byte, e asset.Entry, renew bool) ([]byte, clip.ID, error) {
	if e.Kind != asset.KindKeyframe && e.Kind != asset.KindWalk {
		return nil, uuid.Nil, fmt.Errorf("unknown kind %q", e.Kind)
	}
	if len(data) == 0 {
		data = []byte(`{"clips":[]}`)
	}
	if !gjson.ValidBytes(data) {
		return nil, uuid.Nil, errors.New("manifest is not valid JSON")
	}

	index := -1
	for i, v := range gjson.GetBytes(data, "clips").Array() {
		if v.Get("name").String() != e.Name {
			continue
		}
		index = i
		if id, err := uuid.Parse(v.Get("id").String()); err == nil {
			e.ID = id
		}
		break
	}
	if renew || e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	var err error
	if index < 0 {
		data, err = sjson.SetBytes(data, "clips.-1", e)
		return data, e.ID, err
	}
	base := fmt.Sprintf("clips.%d.", index)
	for _, kv := range [][2]string{{"id", e.ID.String()}, {"file", e.File}, {"kind", e.Kind}} {
		if data, err = sjson.SetBytes(data, base+kv[0], kv[1]); err != nil {
			return nil, uuid.Nil, err
		}
	}
	return data, e.ID, nil
}
