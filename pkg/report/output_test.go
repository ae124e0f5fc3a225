package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/turbokube/detpack/pkg/harness"
	"github.com/turbokube/detpack/pkg/pipeline"
	v1 "github.com/turbokube/detpack/pkg/schema/v1"
)

const testDigest = "sha256:deadb33fdeadb33fdeadb33fdeadb33fdeadb33fdeadb33fdeadb33fdeadb33f"

func verified() *pipeline.Outcome {
	return &pipeline.Outcome{
		Status:          pipeline.Verified,
		Mode:            v1.ModeVerify,
		Source:          "localhost:1234/test/foo:latest",
		InitialStateCID: "bafyinitial",
		InputCID:        "bafyinput",
		FunctionCID:     "bafyinput",
		Runs: []harness.Result{
			{OutputCID: "bafy111", OutputFileHash: "sha256:aaa"},
			{OutputCID: "bafy111", OutputFileHash: "sha256:aaa"},
		},
	}
}

func TestPrint(t *testing.T) {
	t.Run("verified", func(t *testing.T) {
		b := &bytes.Buffer{}
		NewOutput(verified(), nil).Print(b)
		expected := "Initial state CID: bafyinitial\n" +
			"Initial input CID: bafyinput\n" +
			"Function CID: bafyinput\n"
		if b.String() != expected {
			t.Errorf("printed %q", b.String())
		}
	})

	t.Run("packaged", func(t *testing.T) {
		b := &bytes.Buffer{}
		NewOutput(&pipeline.Outcome{Status: pipeline.Packaged, InputCID: "bafyinput"}, nil).Print(b)
		if b.String() != "CID: bafyinput\n" {
			t.Errorf("printed %q", b.String())
		}
	})

	t.Run("failed", func(t *testing.T) {
		b := &bytes.Buffer{}
		o := verified()
		o.Status = pipeline.Failed
		NewOutput(o, nil).Print(b)
		if b.Len() != 0 {
			t.Errorf("printed %q for a failed run", b.String())
		}
	})
}

func TestImage(t *testing.T) {
	o := NewOutput(verified(), nil)
	if o.Image == nil || o.Image.Name != "localhost:1234/test/foo" || o.Image.Tag != "latest" {
		t.Errorf("image %+v", o.Image)
	}

	o = NewOutput(&pipeline.Outcome{Source: "busybox@" + testDigest}, nil)
	if o.Image == nil || o.Image.Name != "busybox" || o.Image.Tag != "" || o.Image.Digest != testDigest {
		t.Errorf("image %+v", o.Image)
	}

	o = NewOutput(&pipeline.Outcome{Source: "Not A Ref"}, nil)
	if o.Image != nil {
		t.Errorf("image %+v", o.Image)
	}
}

func TestWriteFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	trace := NewBuildTrace(start, []string{"CI=true", "HOME=/root"})
	trace.Finish(start.Add(time.Second))

	if err := NewOutput(verified(), trace).WriteFile(fs, "/out.json"); err != nil {
		t.Fatal(err)
	}
	b, err := afero.ReadFile(fs, "/out.json")
	if err != nil {
		t.Fatal(err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(b, &parsed); err != nil {
		t.Fatalf("json %s: %v", b, err)
	}
	outcome := parsed["outcome"].(map[string]any)
	if outcome["status"] != "Verified" || outcome["functionCID"] != "bafyinput" {
		t.Errorf("outcome %v", outcome)
	}
	if runs := outcome["runs"].([]any); len(runs) != 2 {
		t.Errorf("runs %v", runs)
	}
	tr := parsed["trace"].(map[string]any)
	if tr["start"] != "2024-01-02T03:04:05Z" || tr["end"] != "2024-01-02T03:04:06Z" {
		t.Errorf("trace %v", tr)
	}
	if env := tr["env"].(map[string]any); len(env) != 1 || env["CI"] != "true" {
		t.Errorf("env %v", env)
	}
}
