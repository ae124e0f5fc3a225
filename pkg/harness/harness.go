package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/turbokube/detpack/pkg/cid"
	"github.com/turbokube/detpack/pkg/failure"
	"github.com/turbokube/detpack/pkg/registry"
	"github.com/turbokube/detpack/pkg/sandbox"
	v1 "github.com/turbokube/detpack/pkg/schema/v1"
	"go.uber.org/zap"
)

const Stage = "execute"

// Runner starts a throwaway container and waits for it
type Runner interface {
	Run(ctx context.Context, req sandbox.RunRequest, stdout io.Writer) error
}

// Result is the final line of a verifier run
type Result struct {
	OutputCID      string `json:"outputCID"`
	OutputFileHash string `json:"outputFileHash"`
}

type Harness struct {
	Runner   Runner
	Verifier v1.Verifier
	Registry *registry.RegistryConfig
	// Dir is the absolute host path of durable storage, mounted read/write
	Dir string
	// Diagnostics receives every stdout line except the result
	Diagnostics io.Writer
}

func New(runner Runner, verifier v1.Verifier, r *registry.RegistryConfig, dir string) *Harness {
	return &Harness{
		Runner:      runner,
		Verifier:    verifier,
		Registry:    r,
		Dir:         dir,
		Diagnostics: os.Stderr,
	}
}

// Pinned returns the verifier image digest, which is required
func (h *Harness) Pinned() (name.Digest, error) {
	d, err := h.Registry.RequireDigest(h.Verifier.Image)
	if err != nil {
		return name.Digest{}, failure.Usage("verifier.image: %v", err)
	}
	return d, nil
}

// Preflight checks that the registry still serves the pinned verifier
func (h *Harness) Preflight(ctx context.Context) error {
	d, err := h.Pinned()
	if err != nil {
		return err
	}
	if err := h.Registry.Preflight(ctx, d); err != nil {
		return failure.Execution(Stage, err)
	}
	return nil
}

func (h *Harness) request(input cid.CID) sandbox.RunRequest {
	return sandbox.RunRequest{
		Image: h.Verifier.Image,
		Mounts: []sandbox.Mount{
			{Source: h.Dir, Target: h.Verifier.MountPath},
		},
		Network: h.Verifier.Network,
		Command: []string{
			h.Verifier.Script,
			h.Verifier.InitialStateCID,
			input.String(),
			h.Verifier.BehaviorCID,
		},
	}
}

// Run executes input once. It has no state, so calls are independent.
func (h *Harness) Run(ctx context.Context, input cid.CID) (*Result, error) {
	if input.IsZero() {
		return nil, failure.Execution(Stage, errors.New("no input cid"))
	}
	out := &lastLineWriter{forward: h.Diagnostics}
	req := h.request(input)
	zap.L().Info("executing", zap.String("image", req.Image), zap.Stringer("input", input))
	if err := h.Runner.Run(ctx, req, out); err != nil {
		return nil, failure.Execution(Stage, err)
	}
	last := out.Last()
	result, err := ParseResult(last)
	if err != nil {
		zap.L().Error("result", zap.ByteString("line", last), zap.Error(err))
		return nil, failure.Execution(Stage, err)
	}
	zap.L().Info("executed",
		zap.String("outputCID", result.OutputCID),
		zap.String("outputFileHash", result.OutputFileHash),
	)
	return result, nil
}

// ParseResult requires a single JSON object with both fields set
func ParseResult(line []byte) (*Result, error) {
	if len(line) == 0 {
		return nil, errors.New("verifier produced no output")
	}
	result := &Result{}
	if err := json.Unmarshal(line, result); err != nil {
		return nil, fmt.Errorf("malformed result line %q: %w", line, err)
	}
	if result.OutputCID == "" {
		return nil, fmt.Errorf("result line %q has no outputCID", line)
	}
	if result.OutputFileHash == "" {
		return nil, fmt.Errorf("result line %q has no outputFileHash", line)
	}
	return result, nil
}
