package report

import (
	"testing"
	"time"

	. "github.com/onsi/gomega"
)

func TestBuildTraceEnv(t *testing.T) {
	RegisterTestingT(t)
	env := BuildTraceEnv([]string{
		"FOO=bar",
		"CIX=baz",
		"CI=true",
		"DETPACK=nosuffix",
		"DETPACK_MODE=upload",
		"CI_COMMIT_SHA=abc123",
		"NOVALUE",
	})
	Expect(env).NotTo(HaveKey("FOO"))
	Expect(env).NotTo(HaveKey("CIX"))
	Expect(env).To(HaveKeyWithValue("CI", "true"))
	Expect(env).NotTo(HaveKey("DETPACK"))
	Expect(env).To(HaveKeyWithValue("DETPACK_MODE", "upload"))
	Expect(env).To(HaveKeyWithValue("CI_COMMIT_SHA", "abc123"))
	Expect(env).To(HaveLen(3))
}

func TestBuildTraceFinish(t *testing.T) {
	RegisterTestingT(t)
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	trace := NewBuildTrace(start, nil)
	Expect(trace.End).To(BeNil())
	trace.Finish(start.Add(time.Minute))
	Expect(trace.End.Sub(*trace.Start)).To(Equal(time.Minute))
}
