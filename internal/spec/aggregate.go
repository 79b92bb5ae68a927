package spec

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Aggregator merges fragments found along a directory path.
type Aggregator struct {
	// Name is the fragment base name looked up at each level. Defaults to DefaultName.
	Name string
}

// Aggregate reads the fragment at root and at every directory on the way to
// root/rel, merging them in root-to-leaf order so deeper levels win on scalar
// conflicts. Levels without a fragment contribute nothing.
func (a Aggregator) Aggregate(root, rel string) (Fragment, error) {
	segments, err := Segments(rel)
	if err != nil {
		return nil, err
	}
	name := a.Name
	if name == "" {
		name = DefaultName
	}

	acc := Fragment{}
	dir := root
	for i := 0; i <= len(segments); i++ {
		if i > 0 {
			dir = filepath.Join(dir, segments[i-1])
		}
		f, _, err := ReadFragment(dir, name)
		if errors.Is(err, ErrNoFragment) {
			continue
		}
		if err != nil {
			return nil, err
		}
		acc = Merge(acc, f)
	}
	return acc, nil
}

// Segments splits a slash or OS separated relative path into its elements.
// Paths escaping their root are rejected.
func Segments(rel string) ([]string, error) {
	rel = filepath.ToSlash(strings.TrimSpace(rel))
	rel = strings.Trim(rel, "/")
	if rel == "" || rel == "." {
		return nil, nil
	}
	parts := strings.Split(rel, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		switch p {
		case "", ".":
			continue
		case "..":
			return nil, fmt.Errorf("path %q escapes its root", rel)
		}
		out = append(out, p)
	}
	return out, nil
}
