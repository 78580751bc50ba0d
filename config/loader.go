package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/caarlos0/env/v11"
)

//go:embed schema.cue
var schemaSrc string

// ErrValueNotFound is returned by Lookup for a path the configuration
// does not set
var ErrValueNotFound = errors.New("config value not found")

// Loader unifies an optional user file with the embedded schema
type Loader struct {
	value cue.Value
	path  string
}

// NewLoader compiles the schema and, when filePath is not empty, the user
// file, and validates their unification
func NewLoader(filePath string) (*Loader, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	value := schema.LookupPath(cue.ParsePath("#Config"))

	if filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return nil, err
		}
		user := ctx.CompileBytes(content, cue.Filename(filePath))
		if err := user.Err(); err != nil {
			return nil, err
		}
		value = value.Unify(user)
	}

	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate %s: %w", displayPath(filePath), err)
	}
	return &Loader{value: value, path: filePath}, nil
}

func displayPath(p string) string {
	if p == "" {
		return "defaults"
	}
	return p
}

// Lookup decodes the value at a dotted path into target
func (l *Loader) Lookup(path string, target any) error {
	value := l.value.LookupPath(cue.ParsePath(path))
	if !value.Exists() {
		return ErrValueNotFound
	}
	if err := value.Err(); err != nil {
		return err
	}
	return value.Decode(target)
}

// Decode overlays every value set in the configuration onto config
func (l *Loader) Decode(config *Config) error {
	if err := l.value.Decode(config); err != nil {
		return fmt.Errorf("decode %s: %w", displayPath(l.path), err)
	}
	return nil
}

// ApplyEnv overrides configuration values from CUB_* environment variables
func ApplyEnv(config *Config) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load builds the configuration: the CUB defaults, overlaid by the user
// file (if any), overlaid by the environment
func Load(filePath string) (*Config, error) {
	loader, err := NewLoader(filePath)
	if err != nil {
		return nil, err
	}

	config := Default()
	if err := loader.Decode(config); err != nil {
		return nil, err
	}
	if err := ApplyEnv(config); err != nil {
		return nil, err
	}
	applyDefaults(config)
	return config, nil
}
