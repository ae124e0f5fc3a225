package store

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/afero"
	"github.com/turbokube/detpack/pkg/cid"
	v1 "github.com/turbokube/detpack/pkg/schema/v1"
	"go.uber.org/zap"
)

// labelPrefix is what upload mode writes before the identifier
const labelPrefix = "CID: "

// Store is the durable storage layout, an archive and a CID file in one directory.
// File names are fixed so repeated runs overwrite.
type Store struct {
	Fs          afero.Fs
	Dir         string
	ArchiveName string
	CIDName     string
}

func New(fs afero.Fs, dir, archiveName, cidName string) *Store {
	return &Store{
		Fs:          fs,
		Dir:         dir,
		ArchiveName: archiveName,
		CIDName:     cidName,
	}
}

func (s *Store) ArchivePath() string {
	return filepath.Join(s.Dir, s.ArchiveName)
}

func (s *Store) CIDPath() string {
	return filepath.Join(s.Dir, s.CIDName)
}

// Prepare creates the directory and removes artifacts of an earlier run,
// so that a failed copy can't leave a stale archive next to a fresh CID
func (s *Store) Prepare() error {
	if err := s.Fs.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("create output dir %s: %w", s.Dir, err)
	}
	for _, p := range []string{s.ArchivePath(), s.CIDPath()} {
		err := s.Fs.Remove(p)
		if err == nil {
			zap.L().Debug("removed previous artifact", zap.String("path", p))
			continue
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove previous %s: %w", p, err)
		}
	}
	return nil
}

// ReadCID reads the CID file in either the bare or the labelled format
func (s *Store) ReadCID() (cid.CID, error) {
	b, err := afero.ReadFile(s.Fs, s.CIDPath())
	if err != nil {
		return cid.CID{}, fmt.Errorf("read cid file: %w", err)
	}
	return ParseCIDFile(b)
}

// ParseCIDFile accepts "<cid>" and "CID: <cid>" with an optional trailing newline
func ParseCIDFile(b []byte) (cid.CID, error) {
	value := strings.TrimSuffix(string(b), "\n")
	value = strings.TrimPrefix(value, labelPrefix)
	c, err := cid.Parse(value)
	if err != nil {
		return cid.CID{}, fmt.Errorf("cid file: %w", err)
	}
	return c, nil
}

// FormatCIDFile renders the CID file content for a mode
func FormatCIDFile(c cid.CID, mode v1.Mode) []byte {
	if mode == v1.ModeUpload {
		return []byte(labelPrefix + c.String() + "\n")
	}
	return []byte(c.String())
}

// WriteCID replaces the CID file with the format of mode
func (s *Store) WriteCID(c cid.CID, mode v1.Mode) error {
	content := FormatCIDFile(c, mode)
	existing, err := afero.ReadFile(s.Fs, s.CIDPath())
	if err == nil && bytes.Equal(existing, content) {
		return nil
	}
	tmp := s.CIDPath() + ".tmp"
	if err := afero.WriteFile(s.Fs, tmp, content, 0644); err != nil {
		return fmt.Errorf("write cid file: %w", err)
	}
	if err := s.Fs.Rename(tmp, s.CIDPath()); err != nil {
		return fmt.Errorf("replace cid file: %w", err)
	}
	return nil
}

// ArchiveRoot reads the root CID from the archive header
func (s *Store) ArchiveRoot() (cid.CID, error) {
	f, err := s.Fs.Open(s.ArchivePath())
	if err != nil {
		return cid.CID{}, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	return cid.ArchiveRoot(f)
}

// ArchiveDigest is the sha256 of the archive file
func (s *Store) ArchiveDigest() (digest.Digest, error) {
	f, err := s.Fs.Open(s.ArchivePath())
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	d, err := digest.SHA256.FromReader(f)
	if err != nil {
		return "", fmt.Errorf("digest archive: %w", err)
	}
	return d, nil
}
