package codec

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type yamlCodec struct{}

// YAML encodes values with gopkg.in/yaml.v3. Struct fields use the `yaml` tag.
var YAML ICodec = yamlCodec{}

func (yamlCodec) Name() string { return "yaml" }

func (yamlCodec) Encode(v any) ([]byte, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yaml encode: %w", err)
	}
	return data, nil
}

func (yamlCodec) Decode(data []byte, v any) error {
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("yaml decode: %w", err)
	}
	return nil
}
