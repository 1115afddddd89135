package cli

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/inkdot-dev/inkpress/pkg/layout"
)

// loadProfile decodes a TOML typography profile on top of the defaults.
// Keys absent from the file keep their default values; unknown keys are
// rejected so typos do not silently fall back to defaults.
func loadProfile(path string) (layout.Config, error) {
	cfg := layout.Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("profile %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cfg, fmt.Errorf("profile %s: unknown keys: %v", path, keys)
	}
	return cfg, nil
}
