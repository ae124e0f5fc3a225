package cid

import (
	"fmt"
	"io"

	carv2 "github.com/ipld/go-car/v2"
)

// the header is a few dozen bytes, anything larger is not a CARv1 we produced
const maxHeaderLength = 1 << 16

// ArchiveRoots reads the CARv1 header of a DAG export and returns its roots.
// Only the header is read, blocks are left unread.
func ArchiveRoots(r io.Reader) ([]CID, error) {
	br, err := carv2.NewBlockReader(r, carv2.MaxAllowedHeaderSize(maxHeaderLength))
	if err != nil {
		return nil, fmt.Errorf("archive header: %w", err)
	}
	if br.Version != 1 {
		return nil, fmt.Errorf("archive version %d, expected 1", br.Version)
	}
	roots := make([]CID, 0, len(br.Roots))
	for i, root := range br.Roots {
		c, err := FromCid(root)
		if err != nil {
			return nil, fmt.Errorf("archive root %d: %w", i, err)
		}
		roots = append(roots, c)
	}
	return roots, nil
}

// ArchiveRoot requires exactly one root
func ArchiveRoot(r io.Reader) (CID, error) {
	roots, err := ArchiveRoots(r)
	if err != nil {
		return CID{}, err
	}
	if len(roots) != 1 {
		return CID{}, fmt.Errorf("archive has %d roots, expected 1", len(roots))
	}
	return roots[0], nil
}
