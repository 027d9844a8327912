package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ErrUnknownOutput indicates an unsupported output format
var ErrUnknownOutput = errors.New("unknown output format")

func (a *App) print(v any) error {
	return write(a.out, a.output, v)
}

func write(w io.Writer, format string, v any) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		generic, err := toGeneric(v)
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(generic)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOutput, format)
	}
}

// toGeneric passes v through JSON so that raw payloads and json tags are
// rendered the same way in every format
func toGeneric(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var res any
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return res, nil
}
