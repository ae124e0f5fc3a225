package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/distribution/reference"
	"github.com/spf13/afero"
	"github.com/turbokube/detpack/pkg/pipeline"
	"go.uber.org/zap"
)

// Output is the --file-output content
type Output struct {
	Outcome *pipeline.Outcome `json:"outcome"`
	// Image describes the source image, when it parsed
	Image *Image `json:"image,omitempty"`
	// Trace is internal metadata such as start/end and env; optional
	Trace *BuildTrace `json:"trace,omitempty"`
}

type Image struct {
	// Name is the familiar repository name, like docker shows it
	Name string `json:"name"`
	// Tag is empty for digest references without a tag
	Tag    string `json:"tag,omitempty"`
	Digest string `json:"digest,omitempty"`
}

func NewOutput(outcome *pipeline.Outcome, trace *BuildTrace) *Output {
	o := &Output{Outcome: outcome, Trace: trace}
	if outcome == nil || outcome.Source == "" {
		return o
	}
	ref, err := reference.ParseNormalizedNamed(outcome.Source)
	if err != nil {
		zap.L().Debug("source is not a normalized name", zap.String("ref", outcome.Source), zap.Error(err))
		return o
	}
	o.Image = &Image{Name: reference.FamiliarName(ref)}
	if tagged, ok := ref.(reference.Tagged); ok {
		o.Image.Tag = tagged.Tag()
	}
	if digested, ok := ref.(reference.Digested); ok {
		o.Image.Digest = digested.Digest().String()
	}
	return o
}

// Print writes the identifiers a caller needs, and nothing for a failed run
func (o *Output) Print(w io.Writer) {
	if o == nil || o.Outcome == nil {
		return
	}
	switch o.Outcome.Status {
	case pipeline.Verified:
		fmt.Fprintf(w, "Initial state CID: %s\n", o.Outcome.InitialStateCID)
		fmt.Fprintf(w, "Initial input CID: %s\n", o.Outcome.InputCID)
		fmt.Fprintf(w, "Function CID: %s\n", o.Outcome.FunctionCID)
	case pipeline.Packaged:
		fmt.Fprintf(w, "CID: %s\n", o.Outcome.InputCID)
	}
}

func (o *Output) WriteJSON(w io.Writer) error {
	j, err := json.Marshal(o)
	if err != nil {
		return err
	}
	_, err = w.Write(j)
	return err
}

// WriteFile replaces path with the JSON output
func (o *Output) WriteFile(fs afero.Fs, path string) error {
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := o.WriteJSON(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
