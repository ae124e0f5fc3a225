package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/turbokube/detpack/pkg/failure"
)

var (
	BUILD      = "development"
	debug      bool
	version    bool
	loggerMode string
	// timing
	tStart = time.Now()
	// run flags
	configPath string
	mode       string
	outputDir  string
	dockerBin  string
	preflight  bool
	fileOutput string
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "detpack [source image]",
		Short: "Package an image as a content addressed boot archive and verify that it executes deterministically",
		Long: "Builds a reproducible squashfs boot area from the source image, addresses it with an offline IPFS store,\n" +
			"extracts the DAG archive and CID to the output dir, then in verify mode executes it twice and compares the results.",
		SilenceUsage: true,
		Args:         sourceArg,
		RunE:         func(cmd *cobra.Command, args []string) error { return runPipeline(cmd, args) },
	}
	c.PersistentFlags().BoolVarP(&debug, "x", "x", false, "logs at debug level")
	c.PersistentFlags().StringVar(&loggerMode, "log-format", "dev", "log format: dev or plain")
	c.Flags().BoolVar(&version, "version", false, "print build version and exit")
	c.Flags().StringVarP(&configPath, "c", "c", "detpack.yaml", "config file path, or - for stdin; a missing default file means built-in defaults")
	c.Flags().StringVar(&mode, "mode", "", "verify (default) or upload")
	c.Flags().StringVar(&outputDir, "output-dir", "", "directory for the archive and CID file, default is the working directory")
	c.Flags().StringVar(&dockerBin, "docker", "", "container CLI binary")
	c.Flags().BoolVar(&preflight, "preflight", true, "check pinned images against their registries before use")
	c.Flags().StringVar(&fileOutput, "file-output", "", "write the outcome and a build trace as JSON")

	c.AddCommand(newSchemaCmd())
	return c
}

func sourceArg(cmd *cobra.Command, args []string) error {
	if version {
		return nil
	}
	switch len(args) {
	case 1:
		if args[0] == "" {
			return failure.Usage("source image must not be empty")
		}
		return nil
	case 0:
		return failure.Usage("requires a source image argument")
	default:
		return failure.Usage("too many args: exactly one source image")
	}
}
