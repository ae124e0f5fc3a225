package schema

import (
	"fmt"
	"os"
	"path"
	"regexp"

	v1 "github.com/turbokube/detpack/pkg/schema/v1"
	"github.com/turbokube/detpack/pkg/snapshot"
	"go.uber.org/zap"
)

const (
	DefaultArchiveName     = "init_image.car"
	DefaultCIDName         = "init_image.cid"
	DefaultToolchainImage  = "alpine:3.17"
	DefaultInitialStateDir = "/boot/initial"
	DefaultDocker          = "docker"

	// stage2 loader, the boot stage every verify build injects by default
	DefaultStage2Loader = "ghcr.io/tosichain/standard-stage2-loader:master@sha256:f9e1ab3b362f6539836d0de36e34146215bff5527b4f1f4d3106063468496b40"
	DefaultVerifier     = "ghcr.io/tosichain/tosi-verifier:master@sha256:95c6ca885a345bc15462141e95c89a96726027011d40c1cf9869abec89899e5b"
	DefaultInitialState = "bafybeiczsscdsbs7ffqz55asqdf3smv6klcw3gofszvwlyarci47bgf354"
	DefaultBehavior     = "bafybeihnujjp7cll46wrpw4tjxjfzphwzob6suzymfjswoparozveeh7zi"
)

const (
	envMode      = "DETPACK_MODE"
	envOutputDir = "DETPACK_OUTPUT_DIR"
	envDocker    = "DETPACK_DOCKER"
	envToolchain = "DETPACK_TOOLCHAIN_IMAGE"
	envVerifier  = "DETPACK_VERIFIER_IMAGE"
)

var (
	// paths end up in the generated build description so they are restricted to a plain charset
	safePath = regexp.MustCompile(`^/[A-Za-z0-9._/-]*$`)
	safeName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// Template returns the built-in defaults, used when there's no config file
func Template() v1.PipelineConfig {
	return v1.PipelineConfig{
		Status: v1.PipelineConfigStatus{
			Template: true,
		},
		Mode:            v1.ModeVerify,
		OutputDir:       ".",
		ArchiveName:     DefaultArchiveName,
		CIDName:         DefaultCIDName,
		ToolchainImage:  DefaultToolchainImage,
		InitialStateDir: DefaultInitialStateDir,
		BootStages: []v1.BootStage{
			{
				Image:  DefaultStage2Loader,
				Source: "/stage2.squashfs",
				Target: "stage2.squashfs",
			},
		},
		Verifier: v1.Verifier{
			Image:           DefaultVerifier,
			Script:          "/app/qemu-test-cid.sh",
			InitialStateCID: DefaultInitialState,
			BehaviorCID:     DefaultBehavior,
			MountPath:       "/data/ext-car",
		},
		Docker: DefaultDocker,
	}
}

// WithDefaults fills every unset field from Template
func WithDefaults(config v1.PipelineConfig) v1.PipelineConfig {
	t := Template()
	if config.Mode == "" {
		config.Mode = t.Mode
	}
	if config.OutputDir == "" {
		config.OutputDir = t.OutputDir
	}
	if config.ArchiveName == "" {
		config.ArchiveName = t.ArchiveName
	}
	if config.CIDName == "" {
		config.CIDName = t.CIDName
	}
	if config.ToolchainImage == "" {
		config.ToolchainImage = t.ToolchainImage
	}
	if config.InitialStateDir == "" {
		config.InitialStateDir = t.InitialStateDir
	}
	if config.BootStages == nil {
		config.BootStages = t.BootStages
	}
	if config.Verifier.Image == "" {
		config.Verifier.Image = t.Verifier.Image
	}
	if config.Verifier.Script == "" {
		config.Verifier.Script = t.Verifier.Script
	}
	if config.Verifier.InitialStateCID == "" {
		config.Verifier.InitialStateCID = t.Verifier.InitialStateCID
	}
	if config.Verifier.BehaviorCID == "" {
		config.Verifier.BehaviorCID = t.Verifier.BehaviorCID
	}
	if config.Verifier.MountPath == "" {
		config.Verifier.MountPath = t.Verifier.MountPath
	}
	if config.Docker == "" {
		config.Docker = t.Docker
	}
	return config
}

// ApplyEnv overrides config from DETPACK_* env, lookup is normally os.LookupEnv
func ApplyEnv(config *v1.PipelineConfig, lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	set := func(env string, target *string) {
		if v, ok := lookup(env); ok && v != "" {
			zap.L().Debug("config from env", zap.String("name", env), zap.String("value", v))
			*target = v
		}
	}
	mode := string(config.Mode)
	set(envMode, &mode)
	config.Mode = v1.Mode(mode)
	set(envOutputDir, &config.OutputDir)
	set(envDocker, &config.Docker)
	set(envToolchain, &config.ToolchainImage)
	set(envVerifier, &config.Verifier.Image)
}

// Validate checks what can be checked without registry access
func Validate(config v1.PipelineConfig) error {
	switch config.Mode {
	case v1.ModeVerify, v1.ModeUpload:
	default:
		return fmt.Errorf("unknown mode %q, expected %s or %s", config.Mode, v1.ModeVerify, v1.ModeUpload)
	}
	for field, name := range map[string]string{
		"archiveName": config.ArchiveName,
		"cidName":     config.CIDName,
	} {
		if !safeName.MatchString(name) {
			return fmt.Errorf("%s must be a plain file name, got %q", field, name)
		}
	}
	if config.ArchiveName == config.CIDName {
		return fmt.Errorf("archiveName and cidName must differ, both are %q", config.CIDName)
	}
	if err := validatePath("initialStateDir", config.InitialStateDir); err != nil {
		return err
	}
	if config.Mode == v1.ModeVerify && len(config.BootStages) == 0 {
		zap.L().Warn("verify mode without boot stages")
	}
	// the boot area also holds the payload and the initial state copy
	reserved := map[string]bool{
		snapshot.PayloadName:              true,
		path.Base(config.InitialStateDir): true,
	}
	targets := make(map[string]bool, len(config.BootStages))
	for i, b := range config.BootStages {
		if err := validatePath(fmt.Sprintf("bootStages[%d].source", i), b.Source); err != nil {
			return err
		}
		if !safeName.MatchString(b.Target) {
			return fmt.Errorf("bootStages[%d].target must be a plain file name, got %q", i, b.Target)
		}
		if reserved[b.Target] {
			return fmt.Errorf("bootStages[%d].target %q is reserved in the boot area", i, b.Target)
		}
		if targets[b.Target] {
			return fmt.Errorf("bootStages[%d].target %q is already used", i, b.Target)
		}
		targets[b.Target] = true
	}
	if config.Mode == v1.ModeVerify {
		if config.Verifier.Script == "" || !safePath.MatchString(config.Verifier.Script) {
			return fmt.Errorf("verifier.script must be an absolute path, got %q", config.Verifier.Script)
		}
		if err := validatePath("verifier.mountPath", config.Verifier.MountPath); err != nil {
			return err
		}
	}
	for _, d := range []struct {
		field string
		value int64
	}{
		{"timeouts.build", int64(config.Timeouts.Build)},
		{"timeouts.extract", int64(config.Timeouts.Extract)},
		{"timeouts.run", int64(config.Timeouts.Run)},
	} {
		if d.value < 0 {
			return fmt.Errorf("%s must not be negative", d.field)
		}
	}
	return nil
}

func validatePath(field, p string) error {
	if !safePath.MatchString(p) || path.Clean(p) != p || p == "/" {
		return fmt.Errorf("%s must be a clean absolute path below /, got %q", field, p)
	}
	return nil
}
