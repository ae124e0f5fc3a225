package testcases

import (
	"context"
	"fmt"
	"time"

	"github.com/distribution/distribution/v3/configuration"
	dcontext "github.com/distribution/distribution/v3/context"
	"github.com/distribution/distribution/v3/registry"
	_ "github.com/distribution/distribution/v3/registry/storage/driver/inmemory"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/random"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/phayes/freeport"
	"github.com/sirupsen/logrus"
	registryconfig "github.com/turbokube/detpack/pkg/registry"
)

type TestRegistry struct {
	ctx context.Context
	// Host is the start of image URLs up to but excluding the first slash (after .Start)
	Host string
	// Config configures go-containerregistry for access to this registry (after .Start)
	Config registryconfig.RegistryConfig
}

func NewTestregistry(ctx context.Context) *TestRegistry {
	return &TestRegistry{
		ctx: ctx,
	}
}

// Start runs an ephemeral in-memory registry until ctx is cancelled
func (r *TestRegistry) Start() error {
	config := &configuration.Configuration{}
	config.Log.AccessLog.Disabled = true
	config.Log.Level = "error"
	logger := newTestRegistryLogger()
	dcontext.SetDefaultLogger(logger)
	port, err := freeport.GetFreePort()
	if err != nil {
		return fmt.Errorf("failed to get free port: %s", err)
	}

	r.Host = fmt.Sprintf("localhost:%d", port)
	config.HTTP.Addr = fmt.Sprintf("127.0.0.1:%d", port)
	config.HTTP.DrainTimeout = time.Duration(10) * time.Second
	config.Storage = map[string]configuration.Parameters{"inmemory": map[string]interface{}{}}

	dockerRegistry, err := registry.NewRegistry(r.ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create docker registry: %w", err)
	}

	go dockerRegistry.ListenAndServe()

	r.Config = registryconfig.RegistryConfig{
		CraneOptions: crane.Options{},
	}

	return nil
}

// PushRandom writes a small random image to repo:tag and returns its digest reference
func (r *TestRegistry) PushRandom(repo string, tag string) (name.Digest, error) {
	img, err := random.Image(256, 1)
	if err != nil {
		return name.Digest{}, err
	}
	ref, err := name.NewTag(fmt.Sprintf("%s/%s:%s", r.Host, repo, tag), r.Config.CraneOptions.Name...)
	if err != nil {
		return name.Digest{}, err
	}
	var lastErr error
	// the listener starts asynchronously
	for attempt := 0; attempt < 20; attempt++ {
		lastErr = remote.Write(ref, img, r.Config.CraneOptions.Remote...)
		if lastErr == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if lastErr != nil {
		return name.Digest{}, fmt.Errorf("push %s: %w", ref, lastErr)
	}
	h, err := img.Digest()
	if err != nil {
		return name.Digest{}, err
	}
	return ref.Context().Digest(h.String()), nil
}

type testRegistryLogger struct {
}

func newTestRegistryLogger() *testRegistryLogger {
	return &testRegistryLogger{}
}

// https://github.com/distribution/distribution/blob/v2.8.3/context/logger.go#L12
func (l *testRegistryLogger) Print(args ...interface{})                 {}
func (l *testRegistryLogger) Printf(format string, args ...interface{}) {}
func (l *testRegistryLogger) Println(args ...interface{})               {}
func (l *testRegistryLogger) Fatal(args ...interface{})                 {}
func (l *testRegistryLogger) Fatalf(format string, args ...interface{}) {}
func (l *testRegistryLogger) Fatalln(args ...interface{})               {}
func (l *testRegistryLogger) Panic(args ...interface{})                 {}
func (l *testRegistryLogger) Panicf(format string, args ...interface{}) {}
func (l *testRegistryLogger) Panicln(args ...interface{})               {}
func (l *testRegistryLogger) Debug(args ...interface{})                 {}
func (l *testRegistryLogger) Debugf(format string, args ...interface{}) {}
func (l *testRegistryLogger) Debugln(args ...interface{})               {}
func (l *testRegistryLogger) Error(args ...interface{})                 {}
func (l *testRegistryLogger) Errorf(format string, args ...interface{}) {}
func (l *testRegistryLogger) Errorln(args ...interface{})               {}
func (l *testRegistryLogger) Info(args ...interface{})                  {}
func (l *testRegistryLogger) Infof(format string, args ...interface{})  {}
func (l *testRegistryLogger) Infoln(args ...interface{})                {}
func (l *testRegistryLogger) Warn(args ...interface{})                  {}
func (l *testRegistryLogger) Warnf(format string, args ...interface{})  {}
func (l *testRegistryLogger) Warnln(args ...interface{})                {}
func (l *testRegistryLogger) WithError(err error) *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger()).WithError(err)
}
