package confstore

import (
	"fmt"

	"github.com/hamed0406/probekit/check"
	"github.com/hamed0406/probekit/internal/secrets"
)

// deepCopy clones a config layer so merged views never alias the snapshot.
func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			out[k] = deepCopy(val)
		case []any:
			cp := make([]any, len(val))
			for i, item := range val {
				if mm, ok := item.(map[string]any); ok {
					cp[i] = deepCopy(mm)
				} else {
					cp[i] = item
				}
			}
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}

// mergeInto overlays src onto dst: maps merge key-wise, scalars and lists
// override. Maps and lists are copied, never shared with src, so revealing
// secrets on the merged view cannot touch the snapshot.
func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		switch val := v.(type) {
		case map[string]any:
			if dm, ok := dst[k].(map[string]any); ok {
				mergeInto(dm, val)
				continue
			}
			dst[k] = deepCopy(val)
		case []any:
			cp := make([]any, len(val))
			for i, item := range val {
				if mm, ok := item.(map[string]any); ok {
					cp[i] = deepCopy(mm)
				} else {
					cp[i] = item
				}
			}
			dst[k] = cp
		default:
			dst[k] = v
		}
	}
}

// probeConfig resolves a probe section's own config including its `use:`
// chain (alias target first, own values on top). Aliases were validated at
// load, so the chain is finite here.
func (t *Tree) probeConfig(name string) map[string]any {
	ps, ok := t.Probes[name]
	if !ok {
		return map[string]any{}
	}
	base := map[string]any{}
	if ps.Use != "" {
		base = t.probeConfig(ps.Use)
	}
	if ps.Config != nil {
		mergeInto(base, ps.Config)
	}
	return base
}

// assetSection returns the section whose `assets:` list applies to a probe:
// its own when declared, otherwise the `use:` target's.
func (t *Tree) assetSection(name string) *ProbeSection {
	ps, ok := t.Probes[name]
	if !ok {
		return nil
	}
	for ps != nil && ps.Assets == nil && ps.Use != "" {
		ps = t.Probes[ps.Use]
	}
	return ps
}

// Resolve returns the fully merged, secret-revealed config for one asset of
// a probe. ok is false for an asset with no matching entry; callers get the
// probe-level config and must treat the asset as unconfigured, not failed.
func (t *Tree) Resolve(probe string, assetID int) (check.Config, bool) {
	merged := t.probeConfig(probe)

	var entry *AssetEntry
	if ps := t.assetSection(probe); ps != nil {
		// Last-declared block wins, scalar and list-form ids alike.
		for i := range ps.Assets {
			for _, id := range ps.Assets[i].IDs {
				if id == assetID {
					entry = &ps.Assets[i]
				}
			}
		}
	}
	if entry != nil && entry.Config != nil {
		mergeInto(merged, entry.Config)
	}

	secrets.RevealTree(merged)
	return check.Config(merged), entry != nil
}

// Asset returns the declared asset for an id, with its current name.
func (t *Tree) Asset(probe string, assetID int) (check.Asset, bool) {
	for _, a := range t.Assets(probe) {
		if a.ID == assetID {
			return a, true
		}
	}
	return check.Asset{}, false
}

// Assets lists the assets declared for a probe in document order, one per id,
// deduplicated with the last declaration winning.
func (t *Tree) Assets(probe string) []check.Asset {
	ps := t.assetSection(probe)
	if ps == nil {
		return nil
	}
	byID := map[int]check.Asset{}
	var order []int
	for _, entry := range ps.Assets {
		for _, id := range entry.IDs {
			name := entry.Name
			if name == "" {
				name = fmt.Sprintf("asset-%d", id)
			}
			if _, seen := byID[id]; !seen {
				order = append(order, id)
			}
			byID[id] = check.Asset{ID: id, Name: name}
		}
	}
	out := make([]check.Asset, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}
