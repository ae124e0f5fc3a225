package buildcontext

import (
	"fmt"
	"regexp"
	"strings"
)

const DockerfileName = "Dockerfile"

var argName = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Arg is a build argument. Only the name is written to the Dockerfile,
// the value is passed to the builder as a separate argument.
type Arg struct {
	Name  string
	Value string
}

// Stage is a named stage whose base image is given by an Arg
type Stage struct {
	Name string
	Arg  string
}

// Description is a multi-stage build whose last stage runs Steps on the image in BaseArg.
// Image references never appear in the text, so values needn't be escaped.
type Description struct {
	Args    []Arg
	Stages  []Stage
	BaseArg string
	Steps   []string
}

func (d *Description) AddArg(name, value string) {
	d.Args = append(d.Args, Arg{Name: name, Value: value})
}

func (d *Description) AddStage(name, arg, value string) {
	d.AddArg(arg, value)
	d.Stages = append(d.Stages, Stage{Name: name, Arg: arg})
}

func (d *Description) AddSteps(steps ...string) {
	d.Steps = append(d.Steps, steps...)
}

func (d *Description) validate() error {
	seen := make(map[string]bool, len(d.Args))
	for _, a := range d.Args {
		if !argName.MatchString(a.Name) {
			return fmt.Errorf("invalid build arg name %q", a.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate build arg %q", a.Name)
		}
		seen[a.Name] = true
	}
	if !seen[d.BaseArg] {
		return fmt.Errorf("base arg %q is not declared", d.BaseArg)
	}
	for _, s := range d.Stages {
		if !seen[s.Arg] {
			return fmt.Errorf("stage %s arg %q is not declared", s.Name, s.Arg)
		}
	}
	for _, s := range d.Steps {
		if strings.ContainsAny(s, "\n\r") {
			return fmt.Errorf("step must be a single line: %q", s)
		}
	}
	return nil
}

// Dockerfile renders the build description
func (d *Description) Dockerfile() ([]byte, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	var b strings.Builder
	b.WriteString("# generated by detpack, image references are build args\n")
	for _, a := range d.Args {
		fmt.Fprintf(&b, "ARG %s\n", a.Name)
	}
	for _, s := range d.Stages {
		fmt.Fprintf(&b, "FROM ${%s} AS %s\n", s.Arg, s.Name)
	}
	fmt.Fprintf(&b, "FROM ${%s}\n", d.BaseArg)
	for _, s := range d.Steps {
		b.WriteString(s)
		b.WriteString("\n")
	}
	return []byte(b.String()), nil
}

// BuildArgs are the values for the declared args, as builder CLI flags
func (d *Description) BuildArgs() []string {
	args := make([]string, 0, 2*len(d.Args))
	for _, a := range d.Args {
		args = append(args, "--build-arg", a.Name+"="+a.Value)
	}
	return args
}

// Context packs the Dockerfile into a reproducible build context
func (d *Description) Context() (*Context, error) {
	dockerfile, err := d.Dockerfile()
	if err != nil {
		return nil, err
	}
	return NewContext(map[string][]byte{
		DockerfileName: dockerfile,
	})
}
