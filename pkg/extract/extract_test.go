package extract_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/spf13/afero"
	"github.com/turbokube/detpack/pkg/extract"
	"github.com/turbokube/detpack/pkg/failure"
	"github.com/turbokube/detpack/pkg/store"
	"github.com/turbokube/detpack/pkg/testcases"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func setup(t *testing.T) (*extract.Extractor, *testcases.FakeDocker, afero.Fs) {
	zap.ReplaceGlobals(zaptest.NewLogger(t))
	fs := afero.NewMemMapFs()
	docker := testcases.NewFakeDocker()
	docker.OnCopy = func(container, src, dst string) error {
		return afero.WriteFile(fs, dst, []byte(src), 0644)
	}
	return &extract.Extractor{
		Containers:  docker,
		Store:       store.New(fs, "/out", "init_image.car", "init_image.cid"),
		ArchivePath: "/init_image.car",
		CIDPath:     "/init_image.cid",
	}, docker, fs
}

func TestExtract(t *testing.T) {
	RegisterTestingT(t)
	e, docker, fs := setup(t)

	// left over from an earlier run
	Expect(afero.WriteFile(fs, "/out/init_image.car", []byte("stale"), 0644)).To(Succeed())

	Expect(e.Extract(context.Background(), "detpack/address:1")).To(Succeed())
	Expect(docker.Calls).To(Equal([]string{
		"create detpack/address:1",
		"cp container1:/init_image.car /out/init_image.car",
		"cp container1:/init_image.cid /out/init_image.cid",
		"stop container1",
		"rm container1",
	}))
	Expect(docker.Live()).To(Equal(0))
	b, err := afero.ReadFile(fs, "/out/init_image.car")
	Expect(err).NotTo(HaveOccurred())
	Expect(string(b)).To(Equal("/init_image.car"))

	// repeated runs overwrite
	Expect(e.Extract(context.Background(), "detpack/address:1")).To(Succeed())
	files, err := afero.ReadDir(fs, "/out")
	Expect(err).NotTo(HaveOccurred())
	Expect(files).To(HaveLen(2))
	Expect(docker.Live()).To(Equal(0))
}

func TestCopyFailureStillReleases(t *testing.T) {
	RegisterTestingT(t)
	e, docker, fs := setup(t)
	docker.OnCopy = func(container, src, dst string) error {
		if strings.HasSuffix(src, ".car") {
			return errors.New("no such file")
		}
		return afero.WriteFile(fs, dst, []byte(src), 0644)
	}

	err := e.Extract(context.Background(), "img")
	Expect(errors.Is(err, failure.ErrCopy)).To(BeTrue())
	Expect(errors.Is(err, failure.ErrCleanup)).To(BeFalse())
	Expect(docker.CallsTo("cp")).To(HaveLen(1))
	Expect(docker.CallsTo("rm")).To(HaveLen(1))
	Expect(docker.Live()).To(Equal(0))
}

func TestCopyFailureWinsOverCleanup(t *testing.T) {
	RegisterTestingT(t)
	e, docker, _ := setup(t)
	docker.OnCopy = func(container, src, dst string) error { return errors.New("copy") }
	docker.RemoveErr = errors.New("daemon gone")

	err := e.Extract(context.Background(), "img")
	Expect(failure.KindOf(err)).To(Equal(failure.ErrCopy))
	Expect(err.Error()).NotTo(ContainSubstring("daemon gone"))
	Expect(docker.CallsTo("stop")).To(HaveLen(1))
	Expect(docker.CallsTo("rm")).To(HaveLen(1))
}

func TestCleanupFailure(t *testing.T) {
	RegisterTestingT(t)
	e, docker, _ := setup(t)
	docker.StopErr = errors.New("stop timeout")

	err := e.Extract(context.Background(), "img")
	Expect(failure.KindOf(err)).To(Equal(failure.ErrCleanup))
	Expect(err.Error()).To(ContainSubstring("stop timeout"))
	// remove is attempted even when stop fails
	Expect(docker.CallsTo("rm")).To(HaveLen(1))
	Expect(docker.Live()).To(Equal(0))
}

func TestCreateFailure(t *testing.T) {
	RegisterTestingT(t)
	e, docker, _ := setup(t)
	docker.CreateErr = errors.New("no such image")

	err := e.Extract(context.Background(), "img")
	Expect(failure.KindOf(err)).To(Equal(failure.ErrCopy))
	Expect(docker.CallsTo("stop")).To(BeEmpty())
	Expect(docker.CallsTo("rm")).To(BeEmpty())
}

func TestCancelledStillReleases(t *testing.T) {
	RegisterTestingT(t)
	e, docker, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	docker.OnCopy = func(container, src, dst string) error {
		cancel()
		return context.Canceled
	}

	err := e.Extract(ctx, "img")
	Expect(failure.KindOf(err)).To(Equal(failure.ErrCopy))
	Expect(errors.Is(err, context.Canceled)).To(BeTrue())
	Expect(docker.Live()).To(Equal(0))
}
