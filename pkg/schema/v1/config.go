package v1

import "time"

type Mode string

const (
	// ModeVerify packages the image then runs it twice to check determinism
	ModeVerify Mode = "verify"
	// ModeUpload only packages, writing a labelled CID file for publishing
	ModeUpload Mode = "upload"
)

type PipelineConfig struct {
	Status PipelineConfigStatus `json:"-" yaml:"-"`
	// Mode selects verify (default) or upload
	Mode Mode `json:"mode,omitempty" yaml:"mode,omitempty" jsonschema:"enum=verify,enum=upload"`
	// OutputDir is where the archive and CID file are written, default is the working directory
	OutputDir string `json:"outputDir,omitempty" yaml:"outputDir,omitempty"`
	// ArchiveName is the file name of the DAG export
	ArchiveName string `json:"archiveName,omitempty" yaml:"archiveName,omitempty"`
	// CIDName is the file name of the content identifier
	CIDName string `json:"cidName,omitempty" yaml:"cidName,omitempty"`
	// ToolchainImage provides squashfs-tools and kubo for the build sandbox
	ToolchainImage string `json:"toolchainImage,omitempty" yaml:"toolchainImage,omitempty"`
	// InitialStateDir is created in the source filesystem if missing and copied to the boot area
	InitialStateDir string `json:"initialStateDir,omitempty" yaml:"initialStateDir,omitempty"`
	// BootStages are injected into the boot area in verify mode
	BootStages []BootStage `json:"bootStages,omitempty" yaml:"bootStages,omitempty"`
	Verifier   Verifier    `json:"verifier,omitempty" yaml:"verifier,omitempty"`
	// Docker is the container CLI binary
	Docker string `json:"docker,omitempty" yaml:"docker,omitempty"`
	// Preflight checks pinned images against their registries before use
	Preflight *bool    `json:"preflight,omitempty" yaml:"preflight,omitempty"`
	Timeouts  Timeouts `json:"timeouts,omitempty" yaml:"timeouts,omitempty"`
}

type PipelineConfigStatus struct {
	Template bool   // true if config is from a template
	Path     string // config source path (not for template)
	Md5      string // config source md5 (not for template)
	Sha256   string // config source sha256 (not for template)
}

// BootStage is a file copied from a digest pinned image into the boot area
type BootStage struct {
	// Image must be a digest reference, optionally with tag
	Image string `json:"image" yaml:"image"`
	// Source is the absolute path of the file in Image
	Source string `json:"source" yaml:"source"`
	// Target is the file name in the boot area
	Target string `json:"target" yaml:"target"`
}

// Verifier is the execution sandbox
type Verifier struct {
	// Image must be a digest reference, optionally with tag
	Image  string `json:"image,omitempty" yaml:"image,omitempty"`
	Script string `json:"script,omitempty" yaml:"script,omitempty"`
	// InitialStateCID is the pinned initial machine state
	InitialStateCID string `json:"initialStateCID,omitempty" yaml:"initialStateCID,omitempty"`
	// BehaviorCID is the pinned expected-behavior identifier
	BehaviorCID string `json:"behaviorCID,omitempty" yaml:"behaviorCID,omitempty"`
	// MountPath is where the output dir is mounted read/write
	MountPath string `json:"mountPath,omitempty" yaml:"mountPath,omitempty"`
	// Network is passed to the container runtime, empty for its default
	Network string `json:"network,omitempty" yaml:"network,omitempty"`
}

// Timeouts per stage, zero means no timeout
type Timeouts struct {
	Build   time.Duration `json:"build,omitempty" yaml:"build,omitempty"`
	Extract time.Duration `json:"extract,omitempty" yaml:"extract,omitempty"`
	Run     time.Duration `json:"run,omitempty" yaml:"run,omitempty"`
}

func (c PipelineConfig) PreflightEnabled() bool {
	return c.Preflight == nil || *c.Preflight
}
