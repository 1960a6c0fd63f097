package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
// A double underscore separates sections: GUILDWATCH_TELEGRAM__CHAT_ID -> telegram.chat_id.
const EnvPrefix = "GUILDWATCH_"

// envKey maps GUILDWATCH_SOURCES__ROSTER_URL to sources.roster_url.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}

// applyEnv overlays GUILDWATCH_* variables on cfg. Only variables that are set
// change anything; values are weakly typed ("-100" fills an int64).
func applyEnv(cfg *Config) error {
	k := koanf.New(".")
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return fmt.Errorf("env overlay: %w", err)
	}
	if len(k.Keys()) == 0 {
		return nil
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return fmt.Errorf("env overlay: %w", err)
	}
	return nil
}

// EnvOverrides lists the config keys currently set from the environment.
// Values are not returned since they usually carry secrets.
func EnvOverrides() []string {
	var out []string
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, EnvPrefix) {
			out = append(out, envKey(name))
		}
	}
	return out
}
