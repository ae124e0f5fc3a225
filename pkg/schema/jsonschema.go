package schema

import (
	"encoding/json"
	"io"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
	v1 "github.com/turbokube/detpack/pkg/schema/v1"
)

// DurationPattern matches the duration strings the config parser accepts, such as 90s or 1h30m
const DurationPattern = `^(0|([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+)$`

// durations are YAML strings parsed with time.ParseDuration, not the int64 they reflect to
func durationSchema(t reflect.Type) *jsonschema.Schema {
	if t != reflect.TypeOf(time.Duration(0)) {
		return nil
	}
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     DurationPattern,
		Description: "duration such as 90s, 10m or 1h30m, 0 for none",
	}
}

// WriteJSONSchema writes the config file schema, for editor support of detpack.yaml
func WriteJSONSchema(w io.Writer) error {
	r := &jsonschema.Reflector{
		FieldNameTag: "yaml",
		Mapper:       durationSchema,
	}
	s := r.Reflect(&v1.PipelineConfig{})
	s.Title = "detpack config"
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
