package asset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/teslashibe/go-motion/internal/log"
	"github.com/teslashibe/go-motion/pkg/clip"
)

// ManifestFile is the manifest name looked up in an asset directory.
const ManifestFile = "manifest.json"

// Entry is one manifest record.
type Entry struct {
	Name string  `json:"name"`
	ID   clip.ID `json:"id"`
	File string  `json:"file"`
	// Kind selects the motion type, "keyframe" (default) or "walk".
	Kind string `json:"kind,omitempty"`
}

// Motion kinds understood in manifests.
const (
	KindKeyframe = "keyframe"
	KindWalk     = "walk"
)

// ParseManifest reads {"clips":[{"name","id","file","kind"}]}. Entries with a bad
// id are skipped with a warning.
func ParseManifest(data []byte) ([]Entry, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("manifest is not valid JSON")
	}
	var entries []Entry
	gjson.GetBytes(data, "clips").ForEach(func(_, v gjson.Result) bool {
		id, err := uuid.Parse(v.Get("id").String())
		if err != nil {
			log.Warn("skipping manifest entry", "name", v.Get("name").String(), "error", err)
			return true
		}
		e := Entry{
			Name: v.Get("name").String(),
			ID:   id,
			File: v.Get("file").String(),
			Kind: v.Get("kind").String(),
		}
		if e.File == "" {
			e.File = id.String() + ".anim"
		}
		if e.Kind == "" {
			e.Kind = KindKeyframe
		}
		entries = append(entries, e)
		return true
	})
	return entries, nil
}

// Dir serves clips from files in a directory. Files are located through
// manifest.json when present, otherwise as <id>.anim.
type Dir struct {
	root   string
	byID   map[clip.ID]Entry
	byName map[string]clip.ID
}

// NewDir opens an asset directory and loads its manifest.
func NewDir(root string) (*Dir, error) {
	d := &Dir{
		root:   root,
		byID:   make(map[clip.ID]Entry),
		byName: make(map[string]clip.ID),
	}
	data, err := os.ReadFile(filepath.Join(root, ManifestFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return d, nil
	case err != nil:
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	entries, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Join(root, ManifestFile), err)
	}
	for _, e := range entries {
		d.byID[e.ID] = e
		if e.Name != "" {
			d.byName[e.Name] = e.ID
		}
	}
	log.Debug("asset manifest loaded", "dir", root, "clips", len(entries))
	return d, nil
}

// Lookup resolves a manifest name.
func (d *Dir) Lookup(name string) (clip.ID, bool) {
	id, ok := d.byName[name]
	return id, ok
}

// Entries lists manifest entries sorted by name.
func (d *Dir) Entries() []Entry {
	out := make([]Entry, 0, len(d.byID))
	for _, e := range d.byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *Dir) path(id clip.ID) string {
	if e, ok := d.byID[id]; ok {
		return filepath.Join(d.root, e.File)
	}
	return filepath.Join(d.root, id.String()+".anim")
}

// Fetch reads the clip file on a new goroutine.
func (d *Dir) Fetch(ctx context.Context, id clip.ID, onComplete func([]byte, error)) {
	path := d.path(id)
	go deliver("asset.dir", onComplete, func() ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return os.ReadFile(path)
	})
}
