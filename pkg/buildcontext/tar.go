package buildcontext

import (
	"archive/tar"
	"bytes"
	"io"
	"sort"
	"time"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
)

const (
	defaultFileMode = int64(0644)
)

// epoch is the mtime of every context entry
var epoch = time.Unix(0, 0).UTC()

// Context is a reproducible tar build context, i.e. the same files give the same bytes
type Context struct {
	tar    []byte
	diffID v1.Hash
}

// NewContext creates a context from a single file map.
// A filemap is a path -> file content map representing a file system.
// Entries are sorted, owned by root and carry a fixed mode and mtime.
func NewContext(filemap map[string][]byte) (*Context, error) {
	b := &bytes.Buffer{}
	w := tar.NewWriter(b)

	fn := []string{}
	for f := range filemap {
		fn = append(fn, f)
	}
	sort.Strings(fn)

	for _, f := range fn {
		c := filemap[f]
		if err := w.WriteHeader(&tar.Header{
			Name:     f,
			Size:     int64(len(c)),
			Uid:      0,
			Gid:      0,
			Mode:     defaultFileMode,
			ModTime:  epoch,
			Format:   tar.FormatUSTAR,
			Typeflag: tar.TypeReg,
		}); err != nil {
			return nil, err
		}
		if _, err := w.Write(c); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	// Return a new copy of the buffer each time it's opened.
	layer, err := tarball.LayerFromOpener(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewBuffer(b.Bytes())), nil
	})
	if err != nil {
		return nil, err
	}
	diffID, err := layer.DiffID()
	if err != nil {
		return nil, err
	}
	return &Context{
		tar:    b.Bytes(),
		diffID: diffID,
	}, nil
}

// Reader streams the tar, for example to a build's stdin
func (c *Context) Reader() io.Reader {
	return bytes.NewReader(c.tar)
}

// Digest is the sha256 of the uncompressed tar
func (c *Context) Digest() v1.Hash {
	return c.diffID
}
