package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/turbokube/detpack/pkg/annotate"
	"github.com/turbokube/detpack/pkg/buildcontext"
	"github.com/turbokube/detpack/pkg/failure"
	"github.com/turbokube/detpack/pkg/registry"
	"github.com/turbokube/detpack/pkg/sandbox"
	v1 "github.com/turbokube/detpack/pkg/schema/v1"
	"go.uber.org/zap"
)

const (
	Stage = "snapshot"

	// BootDir is the boot area that the content store ingests
	BootDir = "/init_image"
	// PayloadName is the compressed source filesystem in the boot area
	PayloadName = "contract.squashfs"

	sourceDir      = "/image"
	argToolchain   = "TOOLCHAIN_IMAGE"
	argSource      = "SOURCE_IMAGE"
	argBootStage   = "BOOT_STAGE_%d"
	stageSource    = "source"
	stageBootStage = "boot%d"
	tagRepository  = "detpack/snapshot"
)

// squashfs flags that suppress inode numbers, ownership, timestamps and pin the packaging clock
var reproducible = []string{
	"-reproducible", "-all-root", "-noI", "-noId", "-noF", "-noX", "-mkfs-time", "0", "-all-time", "0",
}

// ImageBuilder is the build part of the container CLI
type ImageBuilder interface {
	Build(ctx context.Context, req sandbox.BuildRequest) error
}

type Builder struct {
	Config   v1.PipelineConfig
	Registry *registry.RegistryConfig
	Images   ImageBuilder
}

// Snapshot is a built image holding the prepared boot area at BootDir
type Snapshot struct {
	Source name.Reference
	// Image is the deterministic tag of the built snapshot
	Image   string
	Context string
}

type plan struct {
	description *buildcontext.Description
	source      name.Reference
	bootStages  []name.Digest
}

func (b *Builder) plan(source string) (*plan, error) {
	ref, err := name.ParseReference(source, b.Registry.CraneOptions.Name...)
	if err != nil {
		return nil, failure.Build(Stage, fmt.Errorf("source image %q: %w", source, err))
	}
	if _, err := name.ParseReference(b.Config.ToolchainImage); err != nil {
		return nil, failure.Usage("toolchainImage %q: %v", b.Config.ToolchainImage, err)
	}
	if _, err := name.NewDigest(b.Config.ToolchainImage); err != nil {
		zap.L().Warn("toolchain image is not pinned by digest", zap.String("ref", b.Config.ToolchainImage))
	}

	d := &buildcontext.Description{BaseArg: argToolchain}
	d.AddArg(argToolchain, b.Config.ToolchainImage)
	d.AddStage(stageSource, argSource, source)

	var stages []v1.BootStage
	if b.Config.Mode == v1.ModeVerify {
		stages = b.Config.BootStages
	}
	pinned := make([]name.Digest, 0, len(stages))
	for i, s := range stages {
		digest, err := b.Registry.RequireDigest(s.Image)
		if err != nil {
			return nil, failure.Usage("bootStages[%d]: %v", i, err)
		}
		pinned = append(pinned, digest)
		d.AddStage(fmt.Sprintf(stageBootStage, i), fmt.Sprintf(argBootStage, i), s.Image)
	}

	initial := sourceDir + b.Config.InitialStateDir
	boot := BootDir + "/boot"
	d.AddSteps(
		"RUN apk add --no-cache squashfs-tools",
		fmt.Sprintf("COPY --from=%s / %s", stageSource, sourceDir),
		// a source without initial state gets an empty one
		fmt.Sprintf("RUN mkdir -p %s %s && cp -r %s %s/", boot, initial, initial, boot),
	)
	for i, s := range stages {
		d.AddSteps(fmt.Sprintf("COPY --from=%s %s %s/%s", fmt.Sprintf(stageBootStage, i), s.Source, boot, s.Target))
	}
	flags := append([]string{}, reproducible...)
	if b.Config.Mode == v1.ModeUpload {
		flags = append(flags, "-noD")
	}
	d.AddSteps(fmt.Sprintf("RUN mksquashfs %s %s %s", sourceDir, path.Join(boot, PayloadName), strings.Join(flags, " ")))
	d.AddSteps(fmt.Sprintf("RUN rm -rf %s", sourceDir))

	return &plan{description: d, source: ref, bootStages: pinned}, nil
}

// Build produces a snapshot image from source.
// Failures before the build are usage errors for bad configuration, build errors otherwise.
func (b *Builder) Build(ctx context.Context, source string) (*Snapshot, error) {
	p, err := b.plan(source)
	if err != nil {
		return nil, err
	}
	if b.Config.PreflightEnabled() {
		for _, d := range p.bootStages {
			if err := b.Registry.Preflight(ctx, d); err != nil {
				return nil, failure.Build(Stage, err)
			}
		}
	}

	buildctx, err := p.description.Context()
	if err != nil {
		return nil, failure.Build(Stage, err)
	}
	tag, err := Tag(tagRepository, buildctx, p.description.BuildArgs())
	if err != nil {
		return nil, failure.Build(Stage, err)
	}
	labels, err := annotate.NewBaseImage(source)
	if err != nil {
		return nil, failure.Build(Stage, err)
	}
	labels = labels.WithBootStages(p.bootStages).WithMode(string(b.Config.Mode))

	zap.L().Info("building snapshot",
		zap.String("source", p.source.String()),
		zap.String("tag", tag.String()),
		zap.Int("bootStages", len(p.bootStages)),
	)
	err = b.Images.Build(ctx, sandbox.BuildRequest{
		Tag:       tag.String(),
		Context:   buildctx.Reader(),
		BuildArgs: p.description.BuildArgs(),
		Labels:    labels,
	})
	if err != nil {
		return nil, failure.Build(Stage, err)
	}
	return &Snapshot{
		Source:  p.source,
		Image:   tag.String(),
		Context: buildctx.Digest().String(),
	}, nil
}

// Tag names a build by its context and args so that repeated builds reuse the tag
func Tag(repository string, buildctx *buildcontext.Context, buildArgs []string) (name.Tag, error) {
	h := sha256.New()
	h.Write([]byte(buildctx.Digest().String()))
	for _, a := range buildArgs {
		h.Write([]byte{0})
		h.Write([]byte(a))
	}
	id := hex.EncodeToString(h.Sum(nil))[:16]
	return name.NewTag(repository + ":" + id)
}
