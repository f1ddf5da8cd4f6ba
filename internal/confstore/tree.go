package confstore

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hamed0406/probekit/internal/secrets"
)

const headerFile = `# WARNING: probekit will make ` + "`password` and `secret`" + ` values unreadable
# but this must not be regarded as true encryption as the encryption key is
# publicly available.
#
# Example configuration for a collector named ` + "`myprobe`" + `:
#
#  myprobe:
#    config:
#      username: alice
#      password: "secret password"
#    assets:
#    - id: 12345
#      config:
#        username: bob
#        password: "my secret"
`

// ConfigError is a fatal configuration problem. The probe must not start on
// one of these.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "config: " + e.Reason }

func configErrf(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// AssetEntry is one entry under a probe's `assets:` list. A single entry may
// declare several ids sharing one config block.
type AssetEntry struct {
	IDs    []int
	Name   string
	Config map[string]any
}

// ProbeSection is one top-level probe entry in the config file.
type ProbeSection struct {
	Use    string
	Config map[string]any
	Assets []AssetEntry
}

// Tree is an immutable snapshot of the parsed configuration. Secret values
// inside it stay obfuscated; Resolve reveals them on a private copy.
type Tree struct {
	Probes map[string]*ProbeSection
	raw    map[string]any
}

// Parse builds a Tree from raw YAML bytes. Secrets in the returned tree are
// in whatever form the input had; callers obfuscate via secrets.ObfuscateTree
// on the raw map before building when persisting.
func Parse(data []byte) (*Tree, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, configErrf("malformed yaml: %v", err)
	}
	return buildTree(raw)
}

func buildTree(raw map[string]any) (*Tree, error) {
	t := &Tree{Probes: map[string]*ProbeSection{}, raw: raw}
	for name, v := range raw {
		section, ok := v.(map[string]any)
		if !ok {
			continue
		}
		ps := &ProbeSection{}
		if use, ok := section["use"].(string); ok {
			ps.Use = use
		}
		if cfg, ok := section["config"].(map[string]any); ok {
			ps.Config = cfg
		}
		if assets, ok := section["assets"].([]any); ok {
			for _, a := range assets {
				entry, ok := a.(map[string]any)
				if !ok {
					continue
				}
				ae := AssetEntry{}
				switch id := entry["id"].(type) {
				case int:
					ae.IDs = []int{id}
				case []any:
					for _, one := range id {
						if n, ok := one.(int); ok {
							ae.IDs = append(ae.IDs, n)
						}
					}
				}
				if len(ae.IDs) == 0 {
					return nil, configErrf("probe %q: asset entry without id", name)
				}
				if n, ok := entry["name"].(string); ok {
					ae.Name = n
				}
				if cfg, ok := entry["config"].(map[string]any); ok {
					ae.Config = cfg
				}
				ps.Assets = append(ps.Assets, ae)
			}
		}
		t.Probes[name] = ps
	}
	if err := t.validateAliases(); err != nil {
		return nil, err
	}
	return t, nil
}

// validateAliases rejects unknown `use:` targets and alias cycles at load
// time, never at runtime.
func (t *Tree) validateAliases() error {
	for name, ps := range t.Probes {
		seen := map[string]bool{name: true}
		for cur := ps; cur.Use != ""; {
			next, ok := t.Probes[cur.Use]
			if !ok {
				return configErrf("probe %q: unknown `use` target %q", name, cur.Use)
			}
			if seen[cur.Use] {
				return configErrf("probe %q: `use` alias cycle via %q", name, cur.Use)
			}
			seen[cur.Use] = true
			cur = next
		}
	}
	return nil
}

// Dump serializes the tree the way it persists on disk: header comment first,
// secrets obfuscated.
func (t *Tree) Dump() ([]byte, error) {
	body, err := yaml.Marshal(t.raw)
	if err != nil {
		return nil, err
	}
	return append([]byte(headerFile), body...), nil
}

// loadFile reads, obfuscates and (when needed) rewrites the config file, then
// builds the tree. A missing file is created with the header template.
func loadFile(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create config dir: %w", mkErr)
		}
		if wrErr := os.WriteFile(path, []byte(headerFile), 0o600); wrErr != nil {
			return nil, fmt.Errorf("create config file: %w", wrErr)
		}
		data = []byte(headerFile)
	} else if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, configErrf("malformed yaml in %s: %v", path, err)
	}

	// Plaintext secrets get obfuscated and written back, so the stored file
	// never keeps readable passwords.
	if secrets.ObfuscateTree(raw) {
		tree, err := buildTree(raw)
		if err != nil {
			return nil, err
		}
		out, err := tree.Dump()
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, out, 0o600); err != nil {
			return nil, fmt.Errorf("rewrite config file: %w", err)
		}
		return tree, nil
	}
	return buildTree(raw)
}
