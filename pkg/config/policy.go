package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/orbsec/organization-service/pkg/observability"
	"github.com/orbsec/organization-service/pkg/resilience"
)

// PolicyFile is the hot-reloadable part of the configuration:
//
//	log_level: debug
//	policies:
//	  store-read:
//	    max_concurrent: 50
//	    open_timeout: 10s
//	  remote-license:
//	    max_attempts: 2
//
// Fields left out of a policy keep their built-in default.
type PolicyFile struct {
	LogLevel string                       `yaml:"log_level"`
	Policies map[string]resilience.Config `yaml:"-"`
}

type rawPolicyFile struct {
	LogLevel string               `yaml:"log_level"`
	Policies map[string]yaml.Node `yaml:"policies"`
}

// DefaultPolicyFile returns the built-in policies
func DefaultPolicyFile() *PolicyFile {
	return &PolicyFile{Policies: resilience.DefaultPolicies()}
}

// LoadPolicyFile reads and validates a policy file
func LoadPolicyFile(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicyFile(data)
}

// ParsePolicyFile decodes a policy document over the built-in defaults
func ParsePolicyFile(data []byte) (*PolicyFile, error) {
	var raw rawPolicyFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	pf := DefaultPolicyFile()
	pf.LogLevel = raw.LogLevel
	if pf.LogLevel != "" {
		if _, err := observability.ParseLevel(pf.LogLevel); err != nil {
			return nil, err
		}
	}

	for name, node := range raw.Policies {
		cfg, ok := pf.Policies[name]
		if !ok {
			cfg = resilience.DefaultConfig()
		}
		if err := decodePolicy(node, &cfg); err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}
		pf.Policies[name] = cfg
	}
	return pf, nil
}

// decodePolicy decodes node over cfg, rejecting keys cfg has no field for.
// yaml.Node.Decode does not honor KnownFields, so the node is re-encoded
// and read back through a strict decoder.
func decodePolicy(node yaml.Node, cfg *resilience.Config) error {
	data, err := yaml.Marshal(&node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Names returns the policy names in order
func (pf *PolicyFile) Names() []string {
	names := make([]string, 0, len(pf.Policies))
	for name := range pf.Policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply configures every policy on registry and, when the file sets one,
// the log level of logger. Breaker state and held permits survive.
func (pf *PolicyFile) Apply(registry *resilience.Registry, logger *observability.Logger) {
	for _, name := range pf.Names() {
		registry.Configure(name, pf.Policies[name])
	}
	if pf.LogLevel == "" || logger == nil {
		return
	}
	if level, err := observability.ParseLevel(pf.LogLevel); err == nil && level != logger.Level() {
		logger.SetLevel(level)
		logger.WithField("log_level", level.String()).Info("log level changed")
	}
}
