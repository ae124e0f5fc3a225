package verify

import (
	"fmt"
	"strings"

	"github.com/turbokube/detpack/pkg/failure"
	"github.com/turbokube/detpack/pkg/harness"
)

const (
	FieldOutputCID      = "outputCID"
	FieldOutputFileHash = "outputFileHash"
)

// Violation means two executions of the same input disagree
type Violation struct {
	First  harness.Result
	Second harness.Result
	// Fields names what differs, in result field order
	Fields []string
}

func (v *Violation) Error() string {
	diffs := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		a, b := v.values(f)
		diffs[i] = fmt.Sprintf("%s %q != %q", f, a, b)
	}
	return fmt.Sprintf("%s: %s", failure.ErrDeterminism, strings.Join(diffs, ", "))
}

func (v *Violation) Unwrap() error {
	return failure.ErrDeterminism
}

func (v *Violation) values(field string) (string, string) {
	switch field {
	case FieldOutputCID:
		return v.First.OutputCID, v.Second.OutputCID
	case FieldOutputFileHash:
		return v.First.OutputFileHash, v.Second.OutputFileHash
	}
	return "", ""
}

// Check returns a *Violation unless both fields of a and b are equal.
// It is symmetric, the order of the runs doesn't matter.
func Check(a, b harness.Result) error {
	var fields []string
	if a.OutputCID != b.OutputCID {
		fields = append(fields, FieldOutputCID)
	}
	if a.OutputFileHash != b.OutputFileHash {
		fields = append(fields, FieldOutputFileHash)
	}
	if len(fields) == 0 {
		return nil
	}
	return &Violation{First: a, Second: b, Fields: fields}
}
