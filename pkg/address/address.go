package address

import (
	"context"
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
	specsv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/turbokube/detpack/pkg/buildcontext"
	"github.com/turbokube/detpack/pkg/cid"
	"github.com/turbokube/detpack/pkg/failure"
	"github.com/turbokube/detpack/pkg/sandbox"
	"github.com/turbokube/detpack/pkg/snapshot"
	"github.com/turbokube/detpack/pkg/store"
	"go.uber.org/zap"
)

const (
	Stage = "address"

	// ArchivePath is the DAG export inside the addressed image
	ArchivePath = "/init_image.car"
	// CIDPath holds the bare root identifier inside the addressed image
	CIDPath = "/init_image.cid"

	argSnapshot   = "SNAPSHOT_IMAGE"
	tagRepository = "detpack/address"
	// the store lives and dies within one build step
	storePath = "/tmp/.ipfs"
	staging   = "/tmp/detpack"
)

// ImageBuilder is the build part of the container CLI
type ImageBuilder interface {
	Build(ctx context.Context, req sandbox.BuildRequest) error
}

type Addressor struct {
	Images ImageBuilder
}

// Addressed is an image with ArchivePath and CIDPath
type Addressed struct {
	Image string
}

// Address is what durable storage holds after extraction
type Address struct {
	CID           cid.CID
	ArchiveDigest digest.Digest
}

func description(snapshotImage string) *buildcontext.Description {
	d := &buildcontext.Description{BaseArg: argSnapshot}
	d.AddArg(argSnapshot, snapshotImage)
	env := "IPFS_PATH=" + storePath
	script := []string{
		fmt.Sprintf("mkdir -p %s", staging),
		fmt.Sprintf("%s ipfs init --profile=server,flatfs,lowpower -e", env),
		fmt.Sprintf("CID=$(%s ipfs --offline add -Q --cid-version=1 --hash=sha2-256 -r %s/)", env, snapshot.BootDir),
		fmt.Sprintf("%s ipfs --offline dag export \"$CID\" > %s/archive", env, staging),
		fmt.Sprintf("printf %%s \"$CID\" > %s/cid", staging),
		fmt.Sprintf("mv %s/archive %s", staging, ArchivePath),
		fmt.Sprintf("mv %s/cid %s", staging, CIDPath),
		fmt.Sprintf("rm -rf %s %s", storePath, staging),
	}
	d.AddSteps(
		"RUN apk add --no-cache kubo",
		// one step, so the image has both files or the build fails
		"RUN "+strings.Join(script, " && "),
	)
	return d
}

// Build ingests the snapshot's boot area into a fresh offline store and exports it
func (a *Addressor) Build(ctx context.Context, snap *snapshot.Snapshot) (*Addressed, error) {
	d := description(snap.Image)
	buildctx, err := d.Context()
	if err != nil {
		return nil, failure.Build(Stage, err)
	}
	tag, err := snapshot.Tag(tagRepository, buildctx, d.BuildArgs())
	if err != nil {
		return nil, failure.Build(Stage, err)
	}
	zap.L().Info("addressing", zap.String("snapshot", snap.Image), zap.String("tag", tag.String()))
	err = a.Images.Build(ctx, sandbox.BuildRequest{
		Tag:       tag.String(),
		Context:   buildctx.Reader(),
		BuildArgs: d.BuildArgs(),
		Labels: map[string]string{
			specsv1.AnnotationTitle:         "detpack content address",
			specsv1.AnnotationBaseImageName: snap.Image,
		},
	})
	if err != nil {
		return nil, failure.Build(Stage, err)
	}
	return &Addressed{Image: tag.String()}, nil
}

// Verify checks an extracted pair: the CID file must parse
// and the archive must be rooted at that CID
func Verify(s *store.Store) (*Address, error) {
	c, err := s.ReadCID()
	if err != nil {
		return nil, failure.Build(Stage, err)
	}
	root, err := s.ArchiveRoot()
	if err != nil {
		return nil, failure.Build(Stage, fmt.Errorf("archive %s: %w", s.ArchivePath(), err))
	}
	if root.String() != c.String() {
		zap.L().Error("archive root mismatch", zap.Stringer("cid", c), zap.Stringer("root", root))
		return nil, failure.Build(Stage, fmt.Errorf("archive root %s does not match cid %s", root, c))
	}
	d, err := s.ArchiveDigest()
	if err != nil {
		return nil, failure.Build(Stage, err)
	}
	zap.L().Info("addressed", zap.Stringer("cid", c), zap.String("archive", d.String()))
	return &Address{CID: c, ArchiveDigest: d}, nil
}
