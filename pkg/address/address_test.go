package address_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/spf13/afero"
	"github.com/turbokube/detpack/pkg/address"
	"github.com/turbokube/detpack/pkg/failure"
	"github.com/turbokube/detpack/pkg/sandbox"
	v1 "github.com/turbokube/detpack/pkg/schema/v1"
	"github.com/turbokube/detpack/pkg/snapshot"
	"github.com/turbokube/detpack/pkg/store"
	"github.com/turbokube/detpack/pkg/testcases"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestBuild(t *testing.T) {
	RegisterTestingT(t)
	zap.ReplaceGlobals(zaptest.NewLogger(t))

	docker := testcases.NewFakeDocker()
	a := &address.Addressor{Images: docker}
	addressed, err := a.Build(context.Background(), &snapshot.Snapshot{Image: "detpack/snapshot:0123456789abcdef"})
	Expect(err).NotTo(HaveOccurred())
	Expect(addressed.Image).To(HavePrefix("detpack/address:"))

	Expect(docker.Builds).To(HaveLen(1))
	Expect(docker.Builds[0].BuildArgs).To(Equal([]string{"--build-arg", "SNAPSHOT_IMAGE=detpack/snapshot:0123456789abcdef"}))
	dockerfile := docker.Dockerfiles[0]
	Expect(dockerfile).To(ContainSubstring("FROM ${SNAPSHOT_IMAGE}\n"))
	Expect(dockerfile).To(ContainSubstring("ipfs init --profile=server,flatfs,lowpower -e"))
	Expect(dockerfile).To(ContainSubstring("ipfs --offline add -Q --cid-version=1 --hash=sha2-256 -r /init_image/"))
	Expect(dockerfile).To(ContainSubstring(`ipfs --offline dag export "$CID"`))
	Expect(dockerfile).To(ContainSubstring("mv /tmp/detpack/archive /init_image.car && mv /tmp/detpack/cid /init_image.cid"))

	again, err := a.Build(context.Background(), &snapshot.Snapshot{Image: "detpack/snapshot:0123456789abcdef"})
	Expect(err).NotTo(HaveOccurred())
	Expect(again.Image).To(Equal(addressed.Image))
}

func TestBuildFailure(t *testing.T) {
	RegisterTestingT(t)
	zap.ReplaceGlobals(zaptest.NewLogger(t))

	docker := testcases.NewFakeDocker()
	docker.OnBuild = func(req sandbox.BuildRequest) error { return errors.New("no space left on device") }
	_, err := (&address.Addressor{Images: docker}).Build(context.Background(), &snapshot.Snapshot{Image: "x:y"})
	Expect(errors.Is(err, failure.ErrBuild)).To(BeTrue())
	Expect(err.Error()).To(ContainSubstring("no space left"))
}

func TestVerify(t *testing.T) {
	RegisterTestingT(t)
	zap.ReplaceGlobals(zaptest.NewLogger(t))

	fs := afero.NewMemMapFs()
	s := store.New(fs, "/out", "init_image.car", "init_image.cid")
	Expect(s.Prepare()).To(Succeed())
	c := testcases.MustCID(testcases.InitialStateCID)
	Expect(afero.WriteFile(fs, s.ArchivePath(), testcases.CARv1(c), 0644)).To(Succeed())
	Expect(s.WriteCID(c, v1.ModeVerify)).To(Succeed())

	a, err := address.Verify(s)
	Expect(err).NotTo(HaveOccurred())
	Expect(a.CID).To(Equal(c))
	Expect(a.ArchiveDigest.Validate()).To(Succeed())

	// a stale archive from an earlier run
	Expect(afero.WriteFile(fs, s.ArchivePath(), testcases.CARv1(testcases.MustCID(testcases.SequentialCID)), 0644)).To(Succeed())
	_, err = address.Verify(s)
	Expect(errors.Is(err, failure.ErrBuild)).To(BeTrue())
	Expect(err.Error()).To(ContainSubstring("does not match"))

	Expect(afero.WriteFile(fs, s.CIDPath(), []byte("not a cid"), 0644)).To(Succeed())
	_, err = address.Verify(s)
	Expect(errors.Is(err, failure.ErrBuild)).To(BeTrue())

	Expect(fs.Remove(s.ArchivePath())).To(Succeed())
	Expect(s.WriteCID(c, v1.ModeVerify)).To(Succeed())
	_, err = address.Verify(s)
	Expect(errors.Is(err, failure.ErrBuild)).To(BeTrue())
}
