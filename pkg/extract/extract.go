package extract

import (
	"context"
	"fmt"

	"github.com/turbokube/detpack/pkg/failure"
	"github.com/turbokube/detpack/pkg/store"
	"go.uber.org/zap"
)

const Stage = "extract"

// Containers is the part of the container CLI that manages the build sandbox
type Containers interface {
	Create(ctx context.Context, image string) (string, error)
	CopyFrom(ctx context.Context, container, src, dst string) error
	Stop(ctx context.Context, container string) error
	Remove(ctx context.Context, container string) error
}

// Artifact is a file copied from Source in the sandbox to Destination on the host
type Artifact struct {
	Source      string
	Destination string
}

type Extractor struct {
	Containers Containers
	Store      *store.Store
	// ArchivePath and CIDPath are the artifact paths in the sandbox
	ArchivePath string
	CIDPath     string
}

func (e *Extractor) artifacts() []Artifact {
	return []Artifact{
		{Source: e.ArchivePath, Destination: e.Store.ArchivePath()},
		{Source: e.CIDPath, Destination: e.Store.CIDPath()},
	}
}

// Extract copies the archive and CID file out of a sandbox created from image.
// The sandbox is stopped and removed on every path out of this function.
// A copy error is returned in preference to a cleanup error.
func (e *Extractor) Extract(ctx context.Context, image string) (err error) {
	if err := e.Store.Prepare(); err != nil {
		return failure.Copy(Stage, err)
	}
	container, err := e.Containers.Create(ctx, image)
	if err != nil {
		return failure.Copy(Stage, fmt.Errorf("create sandbox from %s: %w", image, err))
	}
	zap.L().Debug("sandbox created", zap.String("container", container), zap.String("image", image))

	defer func() {
		cleanupErr := e.release(container)
		if cleanupErr == nil {
			return
		}
		if err != nil {
			zap.L().Error("cleanup after copy failure", zap.String("container", container), zap.Error(cleanupErr))
			return
		}
		err = failure.Cleanup(Stage, cleanupErr)
	}()

	for _, a := range e.artifacts() {
		if cpErr := e.Containers.CopyFrom(ctx, container, a.Source, a.Destination); cpErr != nil {
			return failure.Copy(Stage, fmt.Errorf("%s: %w", a.Source, cpErr))
		}
		zap.L().Info("extracted", zap.String("path", a.Destination))
	}
	return nil
}

// release runs without the caller's context so that a cancelled pipeline still cleans up
func (e *Extractor) release(container string) error {
	ctx := context.Background()
	stopErr := e.Containers.Stop(ctx, container)
	if stopErr != nil {
		zap.L().Warn("stop sandbox", zap.String("container", container), zap.Error(stopErr))
	}
	if err := e.Containers.Remove(ctx, container); err != nil {
		return fmt.Errorf("remove sandbox %s: %w", container, err)
	}
	if stopErr != nil {
		return fmt.Errorf("stop sandbox %s: %w", container, stopErr)
	}
	zap.L().Debug("sandbox removed", zap.String("container", container))
	return nil
}
