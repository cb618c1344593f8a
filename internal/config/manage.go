package config

import (
	"fmt"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all config key/value pairs from the current config.
// Secrets are reported as set or unset, never printed.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		value := fmt.Sprintf("%v", s.extract(cfg))
		if s.secret {
			if value == "" {
				value = "(not set)"
			} else {
				value = "(set)"
			}
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  value,
		})
	}
	return result
}

// SetKey writes a config key to the config file, or to the secrets file
// for secret keys.
func SetKey(key, value string) error {
	return setKeyWith(newFileBackend(configFilePath()), NewSecrets(), key, value)
}

func setKeyWith(b ConfigBackend, secrets SecretStore, key, value string) error {
	for _, s := range specs {
		if s.key != key {
			continue
		}
		v, err := parseValue(s.typ, value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		if s.secret {
			return secrets.Set(accountLLMKey, value)
		}
		if s.typ == kInt {
			return b.SetInt(key, v.(int))
		}
		return b.SetString(key, value)
	}

	return fmt.Errorf("unknown config key: %q", key)
}

// ValidKeys returns the list of valid config key names.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}
