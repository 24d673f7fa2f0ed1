package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type cache struct {
	mu     sync.Mutex
	values map[reflect.Type]any
}

var (
	loaded = &cache{values: make(map[reflect.Type]any)}

	defaultEnvLoaded sync.Once
)

// Load parses environment variables into v using `env` struct tags.
// The default .env file is read once if present. Each configuration type is
// parsed once; later calls return the cached copy.
//
//	type StorageConfig struct {
//		Driver string `env:"JOBKIT_STORAGE" envDefault:"memory"`
//	}
//
//	var cfg StorageConfig
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	defaultEnvLoaded.Do(func() {
		_ = godotenv.Load()
	})

	key := reflect.TypeFor[T]()

	loaded.mu.Lock()
	defer loaded.mu.Unlock()

	if cached, ok := loaded.values[key]; ok {
		*v = cached.(T)
		return nil
	}

	var parsed T
	if err := env.Parse(&parsed); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	loaded.values[key] = parsed
	*v = parsed
	return nil
}

// MustLoad works like Load but panics on failure.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// LoadEnv reads the given .env files into the process environment. Later files
// override earlier ones. Variables already set in the environment are kept.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		return godotenv.Load()
	}
	values := make(map[string]string)
	for _, path := range paths {
		m, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("read env file %s: %w", path, err)
		}
		for k, val := range m {
			values[k] = val
		}
	}
	for k, val := range values {
		if _, set := os.LookupEnv(k); set {
			continue
		}
		if err := os.Setenv(k, val); err != nil {
			return err
		}
	}
	return nil
}

// LoadYAML decodes the YAML file at path into v. Unknown fields are rejected.
func LoadYAML(path string, v any) error {
	if v == nil {
		return ErrNilPointer
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return errors.Join(ErrParsingFile, fmt.Errorf("%s: %w", path, err))
	}
	return nil
}

// Reset drops every cached configuration. Intended for tests.
func Reset() {
	loaded.mu.Lock()
	defer loaded.mu.Unlock()
	loaded.values = make(map[reflect.Type]any)
}
