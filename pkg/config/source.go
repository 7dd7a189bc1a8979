package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ConfigSource is one layer of the assessor configuration. The Manager
// applies layers in ascending Priority, so a later layer overrides the
// keys it sets and leaves the others alone.
type ConfigSource interface {
	Name() string
	Priority() int
	Load(k *koanf.Koanf) error
}

// Layer priorities of the built-in sources. An inventory or site layer
// slots in between, for example at 15 to sit under the user's file.
const (
	PriorityDefaults = 10
	PriorityFile     = 20
	PriorityEnv      = 30
	PriorityFlags    = 40
)

// DefaultEnvPrefix prefixes every environment variable read by EnvSource.
const DefaultEnvPrefix = "ASSESSOR_"

// DefaultSource seeds every key with the value from DefaultConfig.
type DefaultSource struct{}

func (s *DefaultSource) Name() string  { return "defaults" }
func (s *DefaultSource) Priority() int { return PriorityDefaults }

func (s *DefaultSource) Load(k *koanf.Koanf) error {
	if err := k.Load(confmap.Provider(DefaultConfigAsMap(), "."), nil); err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}
	return nil
}

// FileSource reads the YAML config file. An empty Path or a missing file
// contributes nothing; an unreadable or malformed file is an error.
type FileSource struct {
	Path string
}

func (s *FileSource) Name() string  { return "file:" + s.Path }
func (s *FileSource) Priority() int { return PriorityFile }

func (s *FileSource) Load(k *koanf.Koanf) error {
	if s.Path == "" {
		return nil
	}
	if _, err := os.Stat(s.Path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat config file %s: %w", s.Path, err)
	}
	if err := k.Load(file.Provider(s.Path), yaml.Parser()); err != nil {
		return fmt.Errorf("load config file %s: %w", s.Path, err)
	}
	return nil
}

// EnvSource reads prefixed environment variables. The first underscore
// after the prefix separates the section:
//
//	ASSESSOR_LOG_LEVEL              -> log.level
//	ASSESSOR_SCHEDULER_CORE_WORKERS -> scheduler.core_workers
//
// Variables outside the config sections (ASSESSOR_WORKSPACE) are ignored.
// List keys take comma separated values.
type EnvSource struct {
	Prefix string // defaults to DefaultEnvPrefix
}

func (s *EnvSource) Name() string  { return "env" }
func (s *EnvSource) Priority() int { return PriorityEnv }

func (s *EnvSource) Load(k *koanf.Koanf) error {
	prefix := s.Prefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	sections, lists := configShape()

	provider := env.ProviderWithValue(prefix, ".", func(name, value string) (string, interface{}) {
		key := EnvKey(prefix, name)
		section, _, _ := strings.Cut(key, ".")
		if !sections[section] {
			return "", nil
		}
		if lists[key] {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(provider, nil); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}
	return nil
}

// EnvKey maps an environment variable name to its koanf key.
func EnvKey(prefix, name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, prefix))
	section, rest, found := strings.Cut(name, "_")
	if !found {
		return section
	}
	return section + "." + rest
}

// FlagSource applies command-line flags. Only flags named after a config
// key ("section.key") are read, so command flags such as --output never
// reach the tree. Unchanged flags only fill keys no lower layer set.
type FlagSource struct {
	Flags *pflag.FlagSet
	Debug bool // forces log.level to debug
}

func (s *FlagSource) Name() string  { return "flags" }
func (s *FlagSource) Priority() int { return PriorityFlags }

func (s *FlagSource) Load(k *koanf.Koanf) error {
	if s.Flags != nil {
		fs := s.Flags
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !strings.Contains(f.Name, ".") {
				return "", nil
			}
			return f.Name, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return fmt.Errorf("load flags: %w", err)
		}
	}
	if s.Debug {
		_ = k.Set("log.level", "debug")
	}
	return nil
}

// DefaultSources returns the built-in layers: defaults, file, env, flags.
func DefaultSources(configPath string, flags *pflag.FlagSet, debug bool) []ConfigSource {
	return []ConfigSource{
		&DefaultSource{},
		&FileSource{Path: configPath},
		&EnvSource{Prefix: DefaultEnvPrefix},
		&FlagSource{Flags: flags, Debug: debug},
	}
}

// configShape reports the known sections and the keys holding lists.
func configShape() (sections, lists map[string]bool) {
	sections, lists = map[string]bool{}, map[string]bool{}
	for key, v := range DefaultConfigAsMap() {
		section, _, _ := strings.Cut(key, ".")
		sections[section] = true
		if _, ok := v.([]string); ok {
			lists[key] = true
		}
	}
	return sections, lists
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
