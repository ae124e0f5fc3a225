package testcases

import (
	"bytes"
	"context"

	gocid "github.com/ipfs/go-cid"
	carv2 "github.com/ipld/go-car/v2"
	"github.com/ipld/go-car/v2/storage"
	"github.com/multiformats/go-multihash"
	"github.com/turbokube/detpack/pkg/cid"
)

// Identifiers with known digests for use in tests
const (
	InitialStateCID = "bafybeiczsscdsbs7ffqz55asqdf3smv6klcw3gofszvwlyarci47bgf354"
	RawLeafCID      = "bafkreiflvov2xk5lvov2xk5lvov2xk5lvov2xk5lvov2xk5lvov2xk5lvm"
	SequentialCID   = "bafybeiaaaebagbafaydqqcikbmga2dqpcaireeyuculbogazdinryhi6d4"
)

// MustCID parses a known good identifier
func MustCID(s string) cid.CID {
	c, err := cid.Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// CARv1 writes a DAG export with the given roots and one raw block,
// the way the content store's dag export lays it out
func CARv1(roots ...cid.CID) []byte {
	rootCids := make([]gocid.Cid, len(roots))
	for i, r := range roots {
		rootCids[i] = r.Cid()
	}
	var out bytes.Buffer
	w, err := storage.NewWritable(&out, rootCids, carv2.WriteAsCarV1(true))
	if err != nil {
		panic(err)
	}
	data := []byte("detpack test block")
	hash, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		panic(err)
	}
	block := gocid.NewCidV1(gocid.Raw, hash)
	if err := w.Put(context.Background(), block.KeyString(), data); err != nil {
		panic(err)
	}
	if err := w.Finalize(); err != nil {
		panic(err)
	}
	return out.Bytes()
}
