package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/turbokube/detpack/pkg/failure"
	"github.com/turbokube/detpack/pkg/pipeline"
	"github.com/turbokube/detpack/pkg/registry"
	"github.com/turbokube/detpack/pkg/report"
	"github.com/turbokube/detpack/pkg/sandbox"
	"github.com/turbokube/detpack/pkg/schema"
	schemav1 "github.com/turbokube/detpack/pkg/schema/v1"
	"go.uber.org/zap"
)

func runPipeline(cmd *cobra.Command, args []string) error {
	if version {
		fmt.Fprintf(os.Stderr, "%s\n", BUILD)
		return nil
	}

	logger := newLogger()
	defer logger.Sync()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	trace := report.NewBuildTrace(tStart, os.Environ())

	config, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	source := args[0]

	aboutConfig := []zap.Field{zap.String("mode", string(config.Mode))}
	if config.Status.Template {
		aboutConfig = append(aboutConfig, zap.Bool("templated", config.Status.Template))
	} else {
		aboutConfig = append(aboutConfig, zap.String("path", config.Status.Path), zap.String("md5", config.Status.Md5), zap.String("sha256", config.Status.Sha256))
	}
	if workdir, err := os.Getwd(); err == nil {
		aboutConfig = append(aboutConfig, zap.String("workdir", workdir))
	}
	zap.L().Info("config", aboutConfig...)

	refs := []string{source, config.Verifier.Image}
	for _, b := range config.BootStages {
		refs = append(refs, b.Image)
	}
	r, err := registry.New(refs...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(config, sandbox.NewDocker(config.Docker), r)
	outcome, runErr := p.Run(ctx, source)
	trace.Finish(time.Now())

	output := report.NewOutput(outcome, trace)
	output.Print(os.Stdout)
	if fileOutput != "" {
		if err := output.WriteFile(afero.NewOsFs(), fileOutput); err != nil {
			wd, _ := os.Getwd()
			zap.L().Error("file-output", zap.String("cwd", wd), zap.String("path", fileOutput), zap.Error(err))
			if runErr == nil {
				return err
			}
		}
	}
	return runErr
}

// resolveConfig applies, from lowest precedence: template, config file, env, flags
func resolveConfig(cmd *cobra.Command) (schemav1.PipelineConfig, error) {
	var config schemav1.PipelineConfig
	if !schema.ConfigExists(configPath) && !cmd.Flags().Changed("c") {
		zap.L().Debug("no config file, using template", zap.String("path", configPath))
		config = schema.Template()
	} else {
		parsed, err := schema.ParseConfig(configPath)
		if err != nil {
			return config, failure.Usage("%v", err)
		}
		config = schema.WithDefaults(parsed)
	}

	schema.ApplyEnv(&config, os.LookupEnv)

	flags := cmd.Flags()
	if flags.Changed("mode") {
		config.Mode = schemav1.Mode(mode)
	}
	if flags.Changed("output-dir") {
		config.OutputDir = outputDir
	}
	if flags.Changed("docker") {
		config.Docker = dockerBin
	}
	if flags.Changed("preflight") {
		config.Preflight = &preflight
	}

	if err := schema.Validate(config); err != nil {
		return config, failure.Usage("%v", err)
	}
	return config, nil
}
