package sandbox

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Docker drives the container CLI. Every method is one process, awaited before returning.
type Docker struct {
	// Binary is the CLI executable, docker or a compatible one
	Binary string
	// Diagnostics receives build output and the stderr of runs
	Diagnostics io.Writer
}

func NewDocker(binary string) *Docker {
	if binary == "" {
		binary = "docker"
	}
	return &Docker{
		Binary:      binary,
		Diagnostics: os.Stderr,
	}
}

type BuildRequest struct {
	// Tag names the resulting image
	Tag string
	// Context is a tar build context with a Dockerfile at its root
	Context io.Reader
	// BuildArgs are CLI flags, see buildcontext.Description.BuildArgs
	BuildArgs []string
	Labels    map[string]string
}

// Build runs an image build with the context streamed on stdin
func (d *Docker) Build(ctx context.Context, req BuildRequest) error {
	if req.Tag == "" {
		return fmt.Errorf("build requires a tag")
	}
	arg := []string{"build", "-t", req.Tag}
	labels := make([]string, 0, len(req.Labels))
	for k := range req.Labels {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	for _, k := range labels {
		arg = append(arg, "--label", k+"="+req.Labels[k])
	}
	arg = append(arg, req.BuildArgs...)
	arg = append(arg, "-")
	p := &process{
		program: d.Binary,
		args:    arg,
		stdin:   req.Context,
		stdout:  d.Diagnostics,
		stderr:  d.Diagnostics,
	}
	_, err := p.run(ctx)
	return err
}

// Create makes a stopped container from image and returns its ID
func (d *Docker) Create(ctx context.Context, image string) (string, error) {
	p := &process{
		program: d.Binary,
		args:    []string{"create", image},
	}
	result, err := p.run(ctx)
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(result.stdout.String())
	if id == "" || strings.ContainsAny(id, " \n") {
		return "", fmt.Errorf("%s create returned unexpected container id %q", d.Binary, id)
	}
	zap.L().Debug("created", zap.String("container", id), zap.String("image", image))
	return id, nil
}

// CopyFrom copies src in the container to dst on the host, overwriting dst
func (d *Docker) CopyFrom(ctx context.Context, container, src, dst string) error {
	p := &process{
		program: d.Binary,
		args:    []string{"cp", container + ":" + src, dst},
	}
	_, err := p.run(ctx)
	return err
}

func (d *Docker) Stop(ctx context.Context, container string) error {
	p := &process{
		program: d.Binary,
		args:    []string{"stop", container},
	}
	_, err := p.run(ctx)
	return err
}

func (d *Docker) Remove(ctx context.Context, container string) error {
	p := &process{
		program: d.Binary,
		args:    []string{"rm", container},
	}
	_, err := p.run(ctx)
	return err
}

type Mount struct {
	Source string
	Target string
}

type RunRequest struct {
	Image   string
	Mounts  []Mount
	Network string
	Command []string
}

// runInterruptGrace is how long a cancelled run client gets to stop its container
const runInterruptGrace = 10 * time.Second

// Run starts a throwaway container and waits for it to exit.
// Its stdout goes to stdout, its stderr to Diagnostics.
// On cancellation the client is interrupted, which it forwards to the container,
// and the named container is force removed once the client is gone.
func (d *Docker) Run(ctx context.Context, req RunRequest, stdout io.Writer) error {
	name, err := runName()
	if err != nil {
		return err
	}
	arg := []string{"run", "--rm", "--name", name}
	for _, m := range req.Mounts {
		arg = append(arg, "-v", m.Source+":"+m.Target)
	}
	if req.Network != "" {
		arg = append(arg, "--network", req.Network)
	}
	arg = append(arg, req.Image)
	arg = append(arg, req.Command...)
	p := &process{
		program:   d.Binary,
		args:      arg,
		stdout:    stdout,
		stderr:    d.Diagnostics,
		interrupt: true,
		waitDelay: runInterruptGrace,
	}
	_, err = p.run(ctx)
	if ctx.Err() != nil {
		d.forceRemove(name)
	}
	return err
}

// forceRemove outlives the run's context
func (d *Docker) forceRemove(container string) {
	p := &process{
		program: d.Binary,
		args:    []string{"rm", "-f", container},
	}
	if _, err := p.run(context.Background()); err != nil {
		zap.L().Warn("remove after cancel", zap.String("container", container), zap.Error(err))
		return
	}
	zap.L().Info("removed cancelled run", zap.String("container", container))
}

func runName() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("run container name: %w", err)
	}
	return "detpack-run-" + hex.EncodeToString(b), nil
}
