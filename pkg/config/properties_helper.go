package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/downfa11-org/xstream/util"
	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	StoragePebble = "pebble"
	StorageMemory = "memory"
)

// loadFile decodes a YAML file, or a JSON file that may carry comments.
func loadFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), v); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return nil
}

// explicitFlags captures the flags set on the command line before a config
// file overwrites the bound fields.
func explicitFlags(fs *pflag.FlagSet) map[string]string {
	explicit := make(map[string]string)
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		explicit[f.Name] = f.Value.String()
	})
	return explicit
}

func applyExplicit(fs *pflag.FlagSet, explicit map[string]string) error {
	for name, value := range explicit {
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("flag --%s: %w", name, err)
		}
	}
	return nil
}

func normalizeCompression(field, t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return util.CompressionNone
	}
	if !util.IsValidCompression(t) {
		util.Warn("Invalid %s '%s', defaulting to 'none'", field, t)
		return util.CompressionNone
	}
	return t
}

func overrideEnvInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseInt(v, *target)
	}
}

func overrideEnvBool(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseBool(v, *target)
	}
}

func overrideEnvString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func overrideEnvDuration(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		target.Duration = util.ParseDuration(v, target.Duration)
	}
}
