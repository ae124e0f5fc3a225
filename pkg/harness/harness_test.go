package harness_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/turbokube/detpack/pkg/cid"
	"github.com/turbokube/detpack/pkg/failure"
	"github.com/turbokube/detpack/pkg/harness"
	"github.com/turbokube/detpack/pkg/registry"
	"github.com/turbokube/detpack/pkg/sandbox"
	"github.com/turbokube/detpack/pkg/schema"
	"github.com/turbokube/detpack/pkg/testcases"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const result = `{"outputCID":"bafybeiaaaebagbafaydqqcikbmga2dqpcaireeyuculbogazdinryhi6d4","outputFileHash":"sha256:aaa"}`

func newHarness(t *testing.T, docker *testcases.FakeDocker) (*harness.Harness, *bytes.Buffer) {
	zap.ReplaceGlobals(zaptest.NewLogger(t))
	r, err := registry.New()
	if err != nil {
		t.Fatal(err)
	}
	h := harness.New(docker, schema.Template().Verifier, r, "/work/out")
	diag := &bytes.Buffer{}
	h.Diagnostics = diag
	return h, diag
}

func TestRun(t *testing.T) {
	RegisterTestingT(t)

	docker := testcases.NewFakeDocker()
	var seen sandbox.RunRequest
	docker.OnRun = func(req sandbox.RunRequest, stdout io.Writer) error {
		seen = req
		fmt.Fprintf(stdout, "qemu starting\n%s\n", result)
		return nil
	}
	h, diag := newHarness(t, docker)
	input := testcases.MustCID(testcases.InitialStateCID)

	r1, err := h.Run(context.Background(), input)
	Expect(err).NotTo(HaveOccurred())
	Expect(r1.OutputCID).To(Equal(testcases.SequentialCID))
	Expect(r1.OutputFileHash).To(Equal("sha256:aaa"))
	Expect(diag.String()).To(Equal("qemu starting\n"))

	Expect(seen.Image).To(Equal(schema.DefaultVerifier))
	Expect(seen.Mounts).To(Equal([]sandbox.Mount{{Source: "/work/out", Target: "/data/ext-car"}}))
	Expect(seen.Command).To(Equal([]string{
		"/app/qemu-test-cid.sh",
		schema.DefaultInitialState,
		testcases.InitialStateCID,
		schema.DefaultBehavior,
	}))

	r2, err := h.Run(context.Background(), input)
	Expect(err).NotTo(HaveOccurred())
	Expect(r2).To(Equal(r1))
	Expect(docker.CallsTo("run")).To(HaveLen(2))
}

func TestRunFailures(t *testing.T) {
	RegisterTestingT(t)

	input := testcases.MustCID(testcases.InitialStateCID)
	for _, tc := range []struct {
		name   string
		output string
		err    error
		expect string
	}{
		{"exit", result + "\n", &sandbox.ExitError{Program: "docker", Command: "run", Code: 125}, "exited with code 125"},
		{"empty", "", nil, "no output"},
		{"text", "done\n", nil, "malformed"},
		{"trailing", result + " x\n", nil, "malformed"},
		{"missing hash", `{"outputCID":"bafy"}` + "\n", nil, "no outputFileHash"},
		{"missing cid", `{"outputFileHash":"sha256:aaa"}` + "\n", nil, "no outputCID"},
		{"result not last", result + "\nshutdown\n", nil, "malformed"},
	} {
		docker := testcases.NewFakeDocker()
		docker.OnRun = func(req sandbox.RunRequest, stdout io.Writer) error {
			io.Copy(stdout, strings.NewReader(tc.output))
			return tc.err
		}
		h, _ := newHarness(t, docker)
		_, err := h.Run(context.Background(), input)
		Expect(errors.Is(err, failure.ErrExecution)).To(BeTrue(), tc.name)
		Expect(err.Error()).To(ContainSubstring(tc.expect), tc.name)
	}

	h, _ := newHarness(t, testcases.NewFakeDocker())
	_, err := h.Run(context.Background(), cid.CID{})
	Expect(errors.Is(err, failure.ErrExecution)).To(BeTrue())
}

func TestPinned(t *testing.T) {
	RegisterTestingT(t)

	h, _ := newHarness(t, testcases.NewFakeDocker())
	d, err := h.Pinned()
	Expect(err).NotTo(HaveOccurred())
	Expect(d.DigestStr()).To(HavePrefix("sha256:95c6ca88"))

	h.Verifier.Image = "ghcr.io/tosichain/tosi-verifier:master"
	_, err = h.Pinned()
	Expect(errors.Is(err, failure.ErrUsage)).To(BeTrue())
	Expect(h.Preflight(context.Background())).To(MatchError(failure.ErrUsage))
}

func TestPreflight(t *testing.T) {
	RegisterTestingT(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := testcases.NewTestregistry(ctx)
	Expect(r.Start()).To(Succeed())
	pinned, err := r.PushRandom("detpack-test/verifier", "master")
	Expect(err).NotTo(HaveOccurred())

	h, _ := newHarness(t, testcases.NewFakeDocker())
	h.Registry = &r.Config
	h.Verifier.Image = pinned.String()
	Expect(h.Preflight(ctx)).To(Succeed())

	h.Verifier.Image = fmt.Sprintf("%s/detpack-test/verifier@sha256:%s", r.Host, strings.Repeat("1", 64))
	err = h.Preflight(ctx)
	Expect(errors.Is(err, failure.ErrExecution)).To(BeTrue())
}
