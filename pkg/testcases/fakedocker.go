package testcases

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/turbokube/detpack/pkg/sandbox"
)

// FakeDocker records container CLI calls and lets tests decide outcomes
type FakeDocker struct {
	mu          sync.Mutex
	Calls       []string
	Builds      []sandbox.BuildRequest
	Dockerfiles []string
	live        map[string]bool
	created     int

	OnBuild func(req sandbox.BuildRequest) error
	OnCopy  func(container, src, dst string) error
	OnRun   func(req sandbox.RunRequest, stdout io.Writer) error
	// CreateErr, StopErr and RemoveErr fail those calls
	CreateErr error
	StopErr   error
	RemoveErr error
}

func NewFakeDocker() *FakeDocker {
	return &FakeDocker{live: map[string]bool{}}
}

func (f *FakeDocker) call(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
}

// Live is the number of created containers not yet removed
func (f *FakeDocker) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

// CallsTo lists recorded calls for one command, like "run"
func (f *FakeDocker) CallsTo(command string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var calls []string
	for _, c := range f.Calls {
		if strings.HasPrefix(c, command+" ") || c == command {
			calls = append(calls, c)
		}
	}
	return calls
}

func (f *FakeDocker) Build(ctx context.Context, req sandbox.BuildRequest) error {
	dockerfile, err := readDockerfile(req.Context)
	if err != nil {
		return err
	}
	f.call("build %s", req.Tag)
	f.mu.Lock()
	f.Builds = append(f.Builds, req)
	f.Dockerfiles = append(f.Dockerfiles, dockerfile)
	f.mu.Unlock()
	if f.OnBuild != nil {
		return f.OnBuild(req)
	}
	return nil
}

func (f *FakeDocker) Create(ctx context.Context, image string) (string, error) {
	f.call("create %s", image)
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	id := fmt.Sprintf("container%d", f.created)
	f.live[id] = true
	return id, nil
}

func (f *FakeDocker) CopyFrom(ctx context.Context, container, src, dst string) error {
	f.call("cp %s:%s %s", container, src, dst)
	if f.OnCopy != nil {
		return f.OnCopy(container, src, dst)
	}
	return nil
}

func (f *FakeDocker) Stop(ctx context.Context, container string) error {
	f.call("stop %s", container)
	return f.StopErr
}

func (f *FakeDocker) Remove(ctx context.Context, container string) error {
	f.call("rm %s", container)
	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, container)
	return nil
}

func (f *FakeDocker) Run(ctx context.Context, req sandbox.RunRequest, stdout io.Writer) error {
	f.call("run %s %s", req.Image, strings.Join(req.Command, " "))
	if f.OnRun != nil {
		return f.OnRun(req, stdout)
	}
	return nil
}

func readDockerfile(buildContext io.Reader) (string, error) {
	tr := tar.NewReader(buildContext)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return "", fmt.Errorf("build context has no Dockerfile")
		}
		if err != nil {
			return "", err
		}
		if h.Name == "Dockerfile" {
			b, err := io.ReadAll(tr)
			return string(b), err
		}
	}
}
