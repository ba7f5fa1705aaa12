package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/utils"
)

// Load reads and parses a YAML config file. Defaults are not applied; call WithDefaults.
func Load(path string) (AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, fmt.Errorf("%w: read config: %w", utils.ErrFilesystem, err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes
func Parse(data []byte) (AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("%w: parse config: %w", utils.ErrParsing, err)
	}
	return cfg, nil
}

// UnmarshalYAML decodes a retry block over DefaultRetryPolicy, so keys left out keep their
// defaults and explicit zeros such as max_retries: 0 or max_jitter: 0s are kept.
func (p *RetryPolicy) UnmarshalYAML(value *yaml.Node) error {
	type plain RetryPolicy
	out := plain(DefaultRetryPolicy())
	if err := value.Decode(&out); err != nil {
		return err
	}
	*p = RetryPolicy(out)
	return nil
}
