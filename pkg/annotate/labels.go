package annotate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/distribution/reference"
	"github.com/google/go-containerregistry/pkg/name"
	specsv1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// Labels go on the intermediate images of a packaging build.
// Keys are the OCI annotation keys so tools like crane can read them.
type Labels map[string]string

const (
	// LabelBootStages lists the pinned boot stage digests, sorted and comma separated
	LabelBootStages = "org.turbokube.detpack.boot-stages"
	// LabelMode is the packaging mode
	LabelMode = "org.turbokube.detpack.mode"
)

// NewBaseImage records the source image like crane append does for a base:
// the digest when the reference has one and the name before any '@'.
// The name is normalized so that "alpine" and "docker.io/library/alpine" label alike.
func NewBaseImage(source string) (Labels, error) {
	ref, err := name.ParseReference(source)
	if err != nil {
		return nil, err
	}
	labels := Labels{
		specsv1.AnnotationTitle: "detpack snapshot",
	}
	if d, ok := ref.(name.Digest); ok {
		labels[specsv1.AnnotationBaseImageDigest] = d.DigestStr()
	}
	baseName := source
	if at := strings.Index(source, "@"); at > 0 {
		baseName = source[:at]
	}
	named, err := reference.ParseNormalizedNamed(baseName)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", baseName, err)
	}
	labels[specsv1.AnnotationBaseImageName] = reference.TagNameOnly(named).String()
	return labels, nil
}

// WithBootStages adds the pinned digests of injected boot stages
func (l Labels) WithBootStages(stages []name.Digest) Labels {
	if len(stages) == 0 {
		return l
	}
	digests := make([]string, len(stages))
	for i, s := range stages {
		digests[i] = s.DigestStr()
	}
	sort.Strings(digests)
	l[LabelBootStages] = strings.Join(digests, ",")
	return l
}

func (l Labels) WithMode(mode string) Labels {
	l[LabelMode] = mode
	return l
}
