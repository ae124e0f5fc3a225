package cid_test

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"testing"

	gocid "github.com/ipfs/go-cid"
	carv2 "github.com/ipld/go-car/v2"
	"github.com/ipld/go-car/v2/storage"
	"github.com/multiformats/go-multihash"
	. "github.com/onsi/gomega"
	"github.com/turbokube/detpack/pkg/cid"
	"github.com/turbokube/detpack/pkg/testcases"
)

const (
	initialState = testcases.InitialStateCID
	rawLeaf      = testcases.RawLeafCID
	sequential   = testcases.SequentialCID
)

func TestParse(t *testing.T) {
	RegisterTestingT(t)

	c, err := cid.Parse(initialState)
	Expect(err).NotTo(HaveOccurred())
	Expect(c.String()).To(Equal(initialState))
	Expect(c.Codec()).To(Equal(uint64(cid.CodecDagPB)))
	Expect(hex.EncodeToString(c.Digest())).To(Equal("59948439065f29619ef41280cbb932be52c56d99c5966b65e0111239f098bbef"))

	raw, err := cid.Parse(rawLeaf)
	Expect(err).NotTo(HaveOccurred())
	Expect(raw.Codec()).To(Equal(uint64(cid.CodecRaw)))
	Expect(raw.Digest()).To(Equal(bytes.Repeat([]byte{0xab}, 32)))

	seq, err := cid.Parse(sequential)
	Expect(err).NotTo(HaveOccurred())
	again, err := cid.FromBytes(seq.Bytes())
	Expect(err).NotTo(HaveOccurred())
	Expect(again).To(Equal(seq))
}

func TestParseRejects(t *testing.T) {
	RegisterTestingT(t)

	for _, s := range []string{
		"",
		" " + initialState,
		initialState + "\n",
		// CIDv0
		"QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
		// uppercase base32
		"BAFYBEICZSSCDSBS7FFQZ55ASQDF3SMV6KLCW3GOFSZVWLYARCI47BGF354",
		// truncated digest
		initialState[:40],
		// base58 multibase
		"zdj7WWeQ43G6JJvLWQWZpyHuAMq6uYWRjkBXFad11vE2LHhQ7",
	} {
		_, err := cid.Parse(s)
		Expect(err).To(HaveOccurred(), s)
	}
}

func TestRejectsOtherHash(t *testing.T) {
	RegisterTestingT(t)

	// version 1, dag-pb, blake2b-256 (0xb220) with 32 bytes
	raw := []byte{0x01, 0x70}
	raw = binary.AppendUvarint(raw, 0xb220)
	raw = append(raw, 0x20)
	raw = append(raw, bytes.Repeat([]byte{1}, 32)...)
	_, err := cid.FromBytes(raw)
	Expect(err).To(MatchError(ContainSubstring("expected sha2-256")))

	// version 0 style prefix
	_, err = cid.FromBytes(append([]byte{0x12, 0x20}, bytes.Repeat([]byte{1}, 32)...))
	Expect(err).To(MatchError(ContainSubstring("version")))
}

func TestArchiveRoot(t *testing.T) {
	RegisterTestingT(t)

	c, err := cid.Parse(initialState)
	Expect(err).NotTo(HaveOccurred())

	root, err := cid.ArchiveRoot(bytes.NewReader(testcases.CARv1(c)))
	Expect(err).NotTo(HaveOccurred())
	Expect(root.String()).To(Equal(initialState))

	other, err := cid.Parse(sequential)
	Expect(err).NotTo(HaveOccurred())
	roots, err := cid.ArchiveRoots(bytes.NewReader(testcases.CARv1(c, other)))
	Expect(err).NotTo(HaveOccurred())
	Expect(roots).To(HaveLen(2))
	Expect(roots[1].String()).To(Equal(sequential))
	_, err = cid.ArchiveRoot(bytes.NewReader(testcases.CARv1(c, other)))
	Expect(err).To(MatchError(ContainSubstring("2 roots")))
}

func TestArchiveRootRejects(t *testing.T) {
	RegisterTestingT(t)

	c, err := cid.Parse(initialState)
	Expect(err).NotTo(HaveOccurred())
	good := testcases.CARv1(c)

	_, err = cid.ArchiveRoot(bytes.NewReader(nil))
	Expect(err).To(HaveOccurred())

	truncated := good[:20]
	_, err = cid.ArchiveRoot(bytes.NewReader(truncated))
	Expect(err).To(HaveOccurred())

	// a CARv2 starts with a pragma header claiming version 2
	_, err = cid.ArchiveRoot(bytes.NewReader(carv2.Pragma))
	Expect(err).To(HaveOccurred())

	// a root hashed with anything but sha2-256 was not produced by our store
	mh, err := multihash.Encode(bytes.Repeat([]byte{1}, 32), multihash.BLAKE2B_MIN+31)
	Expect(err).NotTo(HaveOccurred())
	var blake bytes.Buffer
	w, err := storage.NewWritable(&blake, []gocid.Cid{gocid.NewCidV1(gocid.DagProtobuf, mh)}, carv2.WriteAsCarV1(true))
	Expect(err).NotTo(HaveOccurred())
	Expect(w.Finalize()).To(Succeed())
	_, err = cid.ArchiveRoot(bytes.NewReader(blake.Bytes()))
	Expect(err).To(MatchError(ContainSubstring("expected sha2-256")))
}
