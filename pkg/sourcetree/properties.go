package sourcetree

import (
	"bufio"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/iancoleman/strcase"
	"github.com/mitchellh/mapstructure"
)

// Properties describes a resource, as read from resource_properties.txt.
type Properties struct {
	Filename string    `mapstructure:"filename" yaml:"filename"`
	MimeType string    `mapstructure:"mime_type" yaml:"mime_type"`
	Size     int64     `mapstructure:"size" yaml:"size,omitempty"`
	Created  time.Time `mapstructure:"created" yaml:"created,omitempty"`

	// Extra holds keys without a dedicated field.
	Extra map[string]interface{} `mapstructure:",remain" yaml:"extra,omitempty"`
}

// Resource is a resource directory loaded into memory.
type Resource struct {
	Dir        string
	Properties *Properties
	Data       []byte
}

// ParseProperties reads "key=value" or "key: value" lines. Blank lines and
// lines starting with '#' or '!' are skipped. Keys are normalized to
// snake_case, so "mimeType", "Mime-Type" and "mime_type" are the same key.
func ParseProperties(r io.Reader) (*Properties, error) {
	raw := make(map[string]interface{})

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == '!' {
			continue
		}

		sep := strings.IndexAny(line, "=:")
		if sep <= 0 {
			return nil, fmt.Errorf("line %d: expected key=value, got %q", lineNo, line)
		}
		key := strcase.ToSnake(strings.TrimSpace(line[:sep]))
		raw[key] = strings.TrimSpace(line[sep+1:])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read properties: %w", err)
	}

	var props Properties
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       timeHook,
		WeaklyTypedInput: true,
		Result:           &props,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}

	return &props, nil
}

// timeHook parses free-form timestamps such as "2009-04-01 12:30:00" or
// "Wed Apr 1 12:30:00 UTC 2009". Zone-less values are taken as UTC.
func timeHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	s := data.(string)
	if s == "" {
		return time.Time{}, nil
	}
	return dateparse.ParseIn(s, time.UTC)
}
