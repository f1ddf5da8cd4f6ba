package confstore

import (
	"strings"
	"sync"
	"testing"

	"github.com/hamed0406/probekit/internal/secrets"
)

func mustParse(t *testing.T, src string) *Tree {
	t.Helper()
	tree, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return tree
}

func TestResolve_AssetOverridesProbe(t *testing.T) {
	tree := mustParse(t, `
probeA:
  config:
    u: "x"
  assets:
  - id: 1
    config:
      u: "y"
`)
	cfg, ok := tree.Resolve("probeA", 1)
	if !ok {
		t.Fatalf("asset 1 should be configured")
	}
	if got := cfg.Str("u", ""); got != "y" {
		t.Fatalf("u = %q, want %q", got, "y")
	}
}

func TestResolve_UseAliasInherits(t *testing.T) {
	tree := mustParse(t, `
probeA:
  config:
    u: "x"
    nested:
      a: 1
  assets:
  - id: 7
probeB:
  use: probeA
`)
	cfg, ok := tree.Resolve("probeB", 7)
	if !ok {
		t.Fatalf("asset 7 should resolve through the alias target's assets")
	}
	if got := cfg.Str("u", ""); got != "x" {
		t.Fatalf("u = %q, want inherited %q", got, "x")
	}
	if got := cfg.Int("interval", -1); got != -1 {
		t.Fatalf("unset key should fall back to default")
	}
	nested, isMap := cfg["nested"].(map[string]any)
	if !isMap || nested["a"] != 1 {
		t.Fatalf("nested map not inherited: %#v", cfg["nested"])
	}
}

func TestResolve_MapsMergeKeywise(t *testing.T) {
	tree := mustParse(t, `
probeA:
  config:
    conn:
      host: base
      port: 443
  assets:
  - id: 2
    config:
      conn:
        host: override
`)
	cfg, _ := tree.Resolve("probeA", 2)
	conn := cfg["conn"].(map[string]any)
	if conn["host"] != "override" || conn["port"] != 443 {
		t.Fatalf("key-wise merge broken: %#v", conn)
	}
}

func TestResolve_LastDeclaredBlockWins(t *testing.T) {
	tree := mustParse(t, `
probeA:
  assets:
  - id: [5, 6]
    config:
      who: list-block
  - id: 5
    config:
      who: scalar-block
`)
	cfg, _ := tree.Resolve("probeA", 5)
	if got := cfg.Str("who", ""); got != "scalar-block" {
		t.Fatalf("who = %q, last-declared block must win", got)
	}
	cfg6, _ := tree.Resolve("probeA", 6)
	if got := cfg6.Str("who", ""); got != "list-block" {
		t.Fatalf("who = %q for id 6", got)
	}
}

func TestResolve_UnconfiguredMarker(t *testing.T) {
	tree := mustParse(t, `
probeA:
  config:
    u: "x"
  assets:
  - id: 1
`)
	cfg, ok := tree.Resolve("probeA", 999)
	if ok {
		t.Fatalf("asset 999 must report unconfigured")
	}
	// Unconfigured is not an error: the probe-level view still applies.
	if got := cfg.Str("u", ""); got != "x" {
		t.Fatalf("u = %q for unconfigured asset", got)
	}
}

func TestResolve_RevealsSecrets(t *testing.T) {
	raw := map[string]any{
		"probeA": map[string]any{
			"config": map[string]any{
				"username": "alice",
				"password": "hunter2",
			},
			"assets": []any{map[string]any{"id": 1}},
		},
	}
	if !secrets.ObfuscateTree(raw) {
		t.Fatalf("expected obfuscation to change the tree")
	}
	tree, err := buildTree(raw)
	if err != nil {
		t.Fatalf("buildTree: %v", err)
	}

	cfg, _ := tree.Resolve("probeA", 1)
	if got := cfg.Str("password", ""); got != "hunter2" {
		t.Fatalf("password = %q, want revealed plaintext", got)
	}

	// The snapshot itself must keep the obfuscated form.
	section := tree.Probes["probeA"].Config
	if _, isMap := section["password"].(map[string]any); !isMap {
		t.Fatalf("snapshot leaked plaintext: %#v", section["password"])
	}
}

func TestResolve_ListNestedSecretStaysObfuscatedInSnapshot(t *testing.T) {
	raw := map[string]any{
		"probeA": map[string]any{
			"config": map[string]any{
				"endpoints": []any{
					map[string]any{"host": "a.internal", "password": "hunter2"},
				},
			},
			"assets": []any{map[string]any{"id": 1}},
		},
	}
	if !secrets.ObfuscateTree(raw) {
		t.Fatalf("expected obfuscation to change the tree")
	}
	tree, err := buildTree(raw)
	if err != nil {
		t.Fatalf("buildTree: %v", err)
	}

	cfg, _ := tree.Resolve("probeA", 1)
	eps := cfg["endpoints"].([]any)
	ep := eps[0].(map[string]any)
	if ep["password"] != "hunter2" {
		t.Fatalf("list-nested password not revealed: %#v", ep["password"])
	}

	// The snapshot's own list entry must keep the obfuscated form.
	stored := tree.Probes["probeA"].Config["endpoints"].([]any)[0].(map[string]any)
	if _, isMap := stored["password"].(map[string]any); !isMap {
		t.Fatalf("snapshot leaked plaintext after Resolve: %#v", stored["password"])
	}
}

func TestResolve_ConcurrentResolvesDoNotShareState(t *testing.T) {
	raw := map[string]any{
		"probeA": map[string]any{
			"config": map[string]any{
				"endpoints": []any{
					map[string]any{"host": "a.internal", "password": "hunter2"},
				},
			},
			"assets": []any{
				map[string]any{"id": 1},
				map[string]any{"id": 2},
			},
		},
	}
	secrets.ObfuscateTree(raw)
	tree, err := buildTree(raw)
	if err != nil {
		t.Fatalf("buildTree: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		id := i%2 + 1
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				cfg, _ := tree.Resolve("probeA", id)
				ep := cfg["endpoints"].([]any)[0].(map[string]any)
				if ep["password"] != "hunter2" {
					t.Errorf("password not revealed on merged view: %#v", ep["password"])
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestParse_UseCycleFatal(t *testing.T) {
	_, err := Parse([]byte(`
probeA:
  use: probeB
probeB:
  use: probeA
`))
	if err == nil {
		t.Fatalf("alias cycle must fail at load")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("error should mention the cycle: %v", err)
	}
}

func TestParse_UseUnknownTargetFatal(t *testing.T) {
	_, err := Parse([]byte(`
probeA:
  use: nosuch
`))
	if err == nil {
		t.Fatalf("unknown alias target must fail at load")
	}
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("probeA:\n  config: [unbalanced"))
	if err == nil {
		t.Fatalf("malformed yaml must fail")
	}
}

func TestAssets_ListFormAndNames(t *testing.T) {
	tree := mustParse(t, `
probeA:
  assets:
  - id: 1
    name: core-switch
  - id: [2, 3]
`)
	assets := tree.Assets("probeA")
	if len(assets) != 3 {
		t.Fatalf("want 3 assets, got %d: %+v", len(assets), assets)
	}
	if assets[0].Name != "core-switch" || assets[0].ID != 1 {
		t.Fatalf("named asset wrong: %+v", assets[0])
	}
	if assets[1].Name != "asset-2" {
		t.Fatalf("default name wrong: %+v", assets[1])
	}
}
