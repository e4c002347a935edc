// Package payload stages local files for upload to the remote host.
// Pairs of local path and remote destination are grouped per
// destination into tar.gz jobs that the conductor streams through the
// write command during session startup.
package payload

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Pair maps one local path to a remote destination directory.
type Pair struct {
	LocalPath   string `json:"local_path"`
	Destination string `json:"destination"`
}

// Job is all pairs sharing one normalized destination.
type Job struct {
	Destination string
	Pairs       []Pair
}

// Builder accumulates pairs in call order.
type Builder struct {
	pairs []Pair
}

func (b *Builder) Add(localPath, destination string) {
	b.pairs = append(b.pairs, Pair{LocalPath: localPath, Destination: NormalizeDestination(destination)})
}

func (b *Builder) Pairs() []Pair {
	out := make([]Pair, len(b.pairs))
	copy(out, b.pairs)
	return out
}

// SetPairs replaces the staged pairs, normalizing each destination.
// Used when a conductor is rebuilt from its serialized form.
func (b *Builder) SetPairs(pairs []Pair) {
	b.pairs = make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		b.pairs = append(b.pairs, Pair{LocalPath: p.LocalPath, Destination: NormalizeDestination(p.Destination)})
	}
}

// Jobs groups the staged pairs by destination. Destination order is
// the order each destination was first added.
func (b *Builder) Jobs() []Job {
	var order []string
	byDest := make(map[string][]Pair)
	for _, p := range b.pairs {
		if _, ok := byDest[p.Destination]; !ok {
			order = append(order, p.Destination)
		}
		byDest[p.Destination] = append(byDest[p.Destination], p)
	}
	jobs := make([]Job, 0, len(order))
	for _, dest := range order {
		jobs = append(jobs, Job{Destination: dest, Pairs: byDest[dest]})
	}
	return jobs
}

// NormalizeDestination canonicalizes a remote destination. The remote
// shell expands $HOME, so tilde forms rewrite to /$HOME and relative
// paths are anchored under it. Trailing slashes are stripped except on
// root. Normalization is idempotent.
func NormalizeDestination(dest string) string {
	switch {
	case dest == "" || dest == "~" || dest == "~/":
		dest = "/$HOME"
	case strings.HasPrefix(dest, "~/"):
		dest = "/$HOME/" + dest[2:]
	case !strings.HasPrefix(dest, "/"):
		dest = "/$HOME/" + dest
	}
	for len(dest) > 1 && strings.HasSuffix(dest, "/") {
		dest = dest[:len(dest)-1]
	}
	return dest
}

// Build produces the tar.gz blob for a job. Directories are walked
// recursively; entry names are relative to the staged path's parent so
// the archive unpacks under the destination directly.
func (j Job) Build() ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, p := range j.Pairs {
		if err := addPath(tw, p.LocalPath); err != nil {
			return nil, fmt.Errorf("payload %s: %w", p.LocalPath, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func addPath(tw *tar.Writer, localPath string) error {
	root := filepath.Clean(localPath)
	base := filepath.Dir(root)

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}

		link := ""
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

// SortPairs orders pairs by destination then local path, giving a
// stable order for display.
func SortPairs(pairs []Pair) {
	sort.Slice(pairs, func(i, k int) bool {
		if pairs[i].Destination != pairs[k].Destination {
			return pairs[i].Destination < pairs[k].Destination
		}
		return pairs[i].LocalPath < pairs[k].LocalPath
	})
}
