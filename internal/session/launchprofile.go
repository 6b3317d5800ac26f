package session

import (
	"os"

	"gopkg.in/yaml.v3"
)

// LaunchProfile is an optional override applied to every session this
// daemon spawns, grounded on GandalftheGUI-grove's per-project YAML
// (Project/ContainerConfig): a small struct describing how to run the
// agent, read from DATA_DIR/launch-profile.yaml before each spawn.
type LaunchProfile struct {
	Args []string          `yaml:"args"`
	Env  map[string]string `yaml:"env"`
}

// loadLaunchProfile reads path if it exists. A missing file is not an
// error: it just means no overrides apply.
func loadLaunchProfile(path string) (*LaunchProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var profile LaunchProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// applyEnv layers profile.Env on top of base, returning a new KEY=VALUE
// slice suitable for exec.Cmd.Env.
func applyEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	keyIdx := make(map[string]int, len(base))
	for i, e := range base {
		for j := 0; j < len(e); j++ {
			if e[j] == '=' {
				keyIdx[e[:j]] = i
				break
			}
		}
	}
	result := make([]string, len(base))
	copy(result, base)
	for k, v := range overrides {
		kv := k + "=" + v
		if idx, ok := keyIdx[k]; ok {
			result[idx] = kv
		} else {
			result = append(result, kv)
			keyIdx[k] = len(result) - 1
		}
	}
	return result
}
