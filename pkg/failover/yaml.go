package failover

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// UnmarshalYAML decodes a rule, accepting delays in Go duration notation
// ("30s", "2m").
func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Name             string                 `yaml:"name"`
		PrimaryChannel   notification.Channel   `yaml:"primary_channel"`
		FailoverChannels []notification.Channel `yaml:"failover_channels"`
		Enabled          bool                   `yaml:"enabled"`
		Delay            string                 `yaml:"delay"`
		MaxRetries       int                    `yaml:"max_retries"`
		Conditions       RuleConditions         `yaml:"conditions"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	var delay time.Duration
	if raw.Delay != "" {
		parsed, err := time.ParseDuration(raw.Delay)
		if err != nil {
			return fmt.Errorf("failover rule %q: invalid delay %q: %w", raw.Name, raw.Delay, err)
		}
		delay = parsed
	}

	*r = Rule{
		Name:             raw.Name,
		PrimaryChannel:   raw.PrimaryChannel,
		FailoverChannels: raw.FailoverChannels,
		Enabled:          raw.Enabled,
		Delay:            delay,
		MaxRetries:       raw.MaxRetries,
		Conditions:       raw.Conditions,
	}
	return nil
}

// ruleFile is the on-disk layout: rule sets keyed by tenant id.
//
//	tenants:
//	  acme:
//	    - name: email-to-sms
//	      primary_channel: email
//	      failover_channels: [sms, push]
//	      enabled: true
//	      delay: 30s
//	      conditions:
//	        priority: critical
type ruleFile struct {
	Tenants map[string][]Rule `yaml:"tenants"`
}

// LoadRules parses per-tenant failover rules from a YAML file. The file
// is validated rule by rule; one invalid rule fails the whole load.
func LoadRules(path string) (map[string][]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read failover rules file: %w", err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse failover rules file: %w", err)
	}

	for tenantID, rules := range file.Tenants {
		if tenantID == "" {
			return nil, ErrMissingTenant
		}
		for _, rule := range rules {
			if err := rule.Validate(); err != nil {
				return nil, fmt.Errorf("tenant %s, failover rule %q: %w", tenantID, rule.Name, err)
			}
		}
	}
	return file.Tenants, nil
}

// ConfigureFromFile loads a YAML rules file and applies every tenant's
// rule set to the manager.
func (m *Manager) ConfigureFromFile(path string) error {
	tenants, err := LoadRules(path)
	if err != nil {
		return err
	}
	for tenantID, rules := range tenants {
		if err := m.Configure(tenantID, rules); err != nil {
			return err
		}
	}
	return nil
}
