// Package cid handles the content identifiers produced by the in-sandbox content store.
//
// Only what the packaging pipeline pins is accepted: CID version 1, base32 multibase,
// sha2-256 multihash. Anything else means the store was invoked with different
// parameters and the identifier is not comparable across runs.
package cid

import (
	"errors"
	"fmt"
	"strings"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

const (
	Version = 1

	CodecDagPB = gocid.DagProtobuf
	CodecRaw   = gocid.Raw
)

// CID is a validated content identifier in its canonical string form
type CID struct {
	c gocid.Cid
}

func (c CID) String() string {
	if c.IsZero() {
		return ""
	}
	return c.c.String()
}

func (c CID) Codec() uint64 { return c.c.Type() }

// Digest returns the sha2-256 digest bytes of the root node
func (c CID) Digest() []byte {
	decoded, err := multihash.Decode(c.c.Hash())
	if err != nil {
		return nil
	}
	return decoded.Digest
}

func (c CID) IsZero() bool { return !c.c.Defined() }

// Cid is the library form, for encoders such as archive writers
func (c CID) Cid() gocid.Cid { return c.c }

// Bytes returns the binary form
func (c CID) Bytes() []byte {
	if c.IsZero() {
		return nil
	}
	return c.c.Bytes()
}

// Parse validates s as a CIDv1 with sha2-256 multihash
func Parse(s string) (CID, error) {
	if s == "" {
		return CID{}, errors.New("empty cid")
	}
	if strings.TrimSpace(s) != s {
		return CID{}, fmt.Errorf("cid has surrounding whitespace: %q", s)
	}
	decoded, err := gocid.Decode(s)
	if err != nil {
		return CID{}, fmt.Errorf("cid %q: %w", s, err)
	}
	c, err := pinned(decoded)
	if err != nil {
		return CID{}, fmt.Errorf("cid %q: %w", s, err)
	}
	// base58, uppercase base32 and other multibases decode to the same CID
	if c.String() != s {
		return CID{}, fmt.Errorf("cid %q: non-canonical encoding, expected %q", s, c.String())
	}
	return c, nil
}

// FromBytes decodes the binary form
func FromBytes(raw []byte) (CID, error) {
	decoded, err := gocid.Cast(raw)
	if err != nil {
		return CID{}, err
	}
	return pinned(decoded)
}

// FromCid validates a CID decoded elsewhere, such as an archive header root
func FromCid(c gocid.Cid) (CID, error) {
	if !c.Defined() {
		return CID{}, errors.New("undefined cid")
	}
	return pinned(c)
}

func pinned(c gocid.Cid) (CID, error) {
	if c.Version() != Version {
		return CID{}, fmt.Errorf("cid version %d, expected %d", c.Version(), Version)
	}
	prefix := c.Prefix()
	if prefix.MhType != multihash.SHA2_256 {
		return CID{}, fmt.Errorf("multihash function 0x%x, expected sha2-256", prefix.MhType)
	}
	if prefix.MhLength != 32 {
		return CID{}, fmt.Errorf("multihash length %d, expected 32", prefix.MhLength)
	}
	return CID{c: c}, nil
}
