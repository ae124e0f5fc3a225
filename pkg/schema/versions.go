package schema

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	v1 "github.com/turbokube/detpack/pkg/schema/v1"
	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v3"
)

// Fs is the underlying filesystem to use for reading configuration. OS FS by default
var Fs = afero.NewOsFs()

var stdin []byte

// ParseConfig reads a configuration file.
func ParseConfig(filename string) (v1.PipelineConfig, error) {
	noconfig := v1.PipelineConfig{}
	buf, err := ReadConfiguration(filename)
	if err != nil {
		return noconfig, fmt.Errorf("read detpack config: %w", err)
	}
	config, err := parseConfig(buf)
	if err != nil {
		return noconfig, fmt.Errorf("parse detpack config %s: %w", filename, err)
	}
	config.Status.Path = filename
	return config, nil
}

func parseConfig(buf []byte) (v1.PipelineConfig, error) {
	b := bytes.NewReader(buf)
	decoder := yaml.NewDecoder(b)
	decoder.KnownFields(true)
	var config v1.PipelineConfig
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return v1.PipelineConfig{}, err
	}
	config.Status.Sha256 = fmt.Sprintf("%x", sha256.Sum256(buf))
	config.Status.Md5 = fmt.Sprintf("%x", md5.Sum(buf))
	return config, nil
}

// ReadConfiguration reads config and returns content
func ReadConfiguration(filePath string) ([]byte, error) {
	switch {
	case filePath == "":
		return nil, errors.New("filename not specified")
	case filePath == "-":
		if len(stdin) == 0 {
			var err error
			stdin, err = io.ReadAll(os.Stdin)
			if err != nil {
				return []byte{}, err
			}
		}
		return stdin, nil
	default:
		if !filepath.IsAbs(filePath) {
			dir, err := os.Getwd()
			if err != nil {
				zap.L().Error("get absolute path for config",
					zap.String("path", filePath),
					zap.Error(err),
				)
				return []byte{}, err
			}
			filePath = filepath.Join(dir, filePath)
		}
		return afero.ReadFile(Fs, filePath)
	}
}

// ConfigExists is false for a missing file, which callers may treat as "use the template"
func ConfigExists(filePath string) bool {
	if filePath == "-" {
		return true
	}
	if !filepath.IsAbs(filePath) {
		dir, err := os.Getwd()
		if err != nil {
			return false
		}
		filePath = filepath.Join(dir, filePath)
	}
	_, err := Fs.Stat(filePath)
	return err == nil
}
