package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/turbokube/detpack/pkg/address"
	"github.com/turbokube/detpack/pkg/extract"
	"github.com/turbokube/detpack/pkg/failure"
	"github.com/turbokube/detpack/pkg/harness"
	"github.com/turbokube/detpack/pkg/registry"
	"github.com/turbokube/detpack/pkg/schema"
	v1 "github.com/turbokube/detpack/pkg/schema/v1"
	"github.com/turbokube/detpack/pkg/snapshot"
	"github.com/turbokube/detpack/pkg/store"
	"github.com/turbokube/detpack/pkg/verify"
	"go.uber.org/zap"
)

// Docker is every container CLI operation the stages use
type Docker interface {
	snapshot.ImageBuilder
	extract.Containers
	harness.Runner
}

// Pipeline runs the stages strictly in sequence, one external process at a time.
// There are no retries, the first error ends the run.
type Pipeline struct {
	Config   v1.PipelineConfig
	Docker   Docker
	Registry *registry.RegistryConfig
	// Fs holds durable storage, it must be the filesystem the container CLI copies to
	Fs afero.Fs
	// Diagnostics receives the forwarded output of executions
	Diagnostics io.Writer
}

func New(config v1.PipelineConfig, docker Docker, r *registry.RegistryConfig) *Pipeline {
	return &Pipeline{
		Config:      config,
		Docker:      docker,
		Registry:    r,
		Fs:          afero.NewOsFs(),
		Diagnostics: os.Stderr,
	}
}

type run struct {
	outcome *Outcome
}

func (r *run) enter(s State) {
	zap.L().Debug("transition", zap.String("from", string(r.outcome.Status)), zap.String("to", string(s)))
	r.outcome.States = append(r.outcome.States, s)
	r.outcome.Status = s
}

func (r *run) fail(err error) (*Outcome, error) {
	o := r.outcome
	o.FailedIn = o.Status
	if kind := failure.KindOf(err); kind != nil {
		o.Kind = kind.Error()
	}
	o.Reason = err.Error()
	r.enter(Failed)
	zap.L().Error("pipeline failed", zap.String("in", string(o.FailedIn)), zap.Error(err))
	return o, err
}

func stageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Run packages source and, in verify mode, executes it twice and compares.
// The returned outcome is non-nil also when err is not.
func (p *Pipeline) Run(ctx context.Context, source string) (*Outcome, error) {
	r := &run{outcome: &Outcome{
		Status: Idle,
		Mode:   p.Config.Mode,
		Source: source,
		States: []State{Idle},
	}}

	if source == "" {
		return r.fail(failure.Usage("a source image reference is required"))
	}
	if err := schema.Validate(p.Config); err != nil {
		return r.fail(failure.Usage("config: %v", err))
	}
	dir, err := filepath.Abs(p.Config.OutputDir)
	if err != nil {
		return r.fail(failure.Usage("outputDir %s: %v", p.Config.OutputDir, err))
	}
	s := store.New(p.Fs, dir, p.Config.ArchiveName, p.Config.CIDName)
	h := harness.New(p.Docker, p.Config.Verifier, p.Registry, dir)
	h.Diagnostics = p.Diagnostics
	verifying := p.Config.Mode == v1.ModeVerify
	if verifying {
		// config errors before any process runs
		if _, err := h.Pinned(); err != nil {
			return r.fail(err)
		}
	}

	r.enter(Building)
	builder := &snapshot.Builder{Config: p.Config, Registry: p.Registry, Images: p.Docker}
	stageCtx, cancel := stageContext(ctx, p.Config.Timeouts.Build)
	snap, err := builder.Build(stageCtx, source)
	cancel()
	if err != nil {
		return r.fail(err)
	}

	r.enter(Addressing)
	addressor := &address.Addressor{Images: p.Docker}
	stageCtx, cancel = stageContext(ctx, p.Config.Timeouts.Build)
	addressed, err := addressor.Build(stageCtx, snap)
	cancel()
	if err != nil {
		return r.fail(err)
	}

	r.enter(Extracting)
	extractor := &extract.Extractor{
		Containers:  p.Docker,
		Store:       s,
		ArchivePath: address.ArchivePath,
		CIDPath:     address.CIDPath,
	}
	stageCtx, cancel = stageContext(ctx, p.Config.Timeouts.Extract)
	err = extractor.Extract(stageCtx, addressed.Image)
	cancel()
	if err != nil {
		return r.fail(err)
	}
	addr, err := address.Verify(s)
	if err != nil {
		return r.fail(err)
	}
	if err := s.WriteCID(addr.CID, p.Config.Mode); err != nil {
		return r.fail(failure.Copy(extract.Stage, err))
	}
	r.outcome.InputCID = addr.CID.String()
	r.outcome.ArchiveDigest = addr.ArchiveDigest.String()

	if !verifying {
		r.enter(Packaged)
		return r.outcome, nil
	}

	r.enter(Running1)
	if p.Config.PreflightEnabled() {
		if err := h.Preflight(ctx); err != nil {
			return r.fail(err)
		}
	}
	results := make([]harness.Result, 0, 2)
	for i, state := range []State{Running1, Running2} {
		if i > 0 {
			r.enter(state)
		}
		stageCtx, cancel = stageContext(ctx, p.Config.Timeouts.Run)
		result, err := h.Run(stageCtx, addr.CID)
		cancel()
		if err != nil {
			return r.fail(fmt.Errorf("run %d: %w", i+1, err))
		}
		results = append(results, *result)
		r.outcome.Runs = results
	}

	r.enter(Comparing)
	if err := verify.Check(results[0], results[1]); err != nil {
		return r.fail(err)
	}

	r.enter(Verified)
	r.outcome.InitialStateCID = p.Config.Verifier.InitialStateCID
	r.outcome.FunctionCID = addr.CID.String()
	return r.outcome, nil
}
