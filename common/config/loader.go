package config

import (
	"context"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"strings"
)

const envPrefix = "DEALS_"

// LoadConfig layers defaults, the optional YAML file at filepath and DEALS_ environment variables,
// in that order. Nested keys are separated by a double underscore: DEALS_SOURCE__BASE_URL sets
// source.base_url.
func LoadConfig(ctx context.Context, filepath string, validate *validator.Validate) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, err
	}

	if filepath != "" {
		if err := k.Load(file.Provider(filepath), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	var config Config

	if err := k.Unmarshal("", &config); err != nil {
		return nil, err
	}

	if err := validate.StructCtx(ctx, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
