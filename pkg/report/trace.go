package report

import (
	"regexp"
	"strings"
	"time"
)

var (
	defaultEnv = regexp.MustCompile(`^(CI|CI_.*|DETPACK_.*)$`)
)

type BuildTrace struct {
	Start *time.Time        `json:"start,omitempty"`
	End   *time.Time        `json:"end,omitempty"`
	Env   map[string]string `json:"env,omitempty"`
}

// NewBuildTrace starts a trace, End is set by Finish
func NewBuildTrace(start time.Time, environ []string) *BuildTrace {
	return &BuildTrace{
		Start: &start,
		Env:   BuildTraceEnv(environ),
	}
}

func (t *BuildTrace) Finish(end time.Time) {
	t.End = &end
}

func BuildTraceEnv(environ []string) map[string]string {
	env := make(map[string]string)
	for _, e := range environ {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 && defaultEnv.MatchString(pair[0]) {
			env[pair[0]] = pair[1]
		}
	}
	return env
}
