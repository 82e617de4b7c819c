package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// policyFile mirrors DiscoveryPolicy with a string timeout so the file can say "1500ms".
type policyFile struct {
	LocalDeviceCount *int     `yaml:"local_device_count"`
	FallbackPrefix   string   `yaml:"fallback_prefix"`
	HostSuffixes     []int    `yaml:"host_suffixes"`
	URLTemplates     []string `yaml:"url_templates"`
	PingTimeout      string   `yaml:"ping_timeout"`
	Workers          int      `yaml:"workers"`
}

// LoadPolicyFile reads a YAML discovery policy. Fields absent from the file keep
// the value they have in base.
func LoadPolicyFile(path string, base DiscoveryPolicy) (DiscoveryPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read policy file: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return base, fmt.Errorf("failed to parse policy file: %w", err)
	}

	policy := base
	if file.LocalDeviceCount != nil && *file.LocalDeviceCount >= 0 {
		policy.LocalDeviceCount = *file.LocalDeviceCount
	}
	if file.FallbackPrefix != "" {
		policy.FallbackPrefix = file.FallbackPrefix
	}
	if len(file.HostSuffixes) > 0 {
		for _, s := range file.HostSuffixes {
			if s < 0 || s > 255 {
				return base, fmt.Errorf("host suffix out of range: %d", s)
			}
		}
		policy.HostSuffixes = file.HostSuffixes
	}
	if len(file.URLTemplates) > 0 {
		policy.URLTemplates = file.URLTemplates
	}
	if file.PingTimeout != "" {
		d, err := time.ParseDuration(file.PingTimeout)
		if err != nil {
			return base, fmt.Errorf("invalid ping_timeout: %w", err)
		}
		policy.PingTimeout = d
	}
	if file.Workers > 0 {
		policy.Workers = file.Workers
	}

	return policy, nil
}
