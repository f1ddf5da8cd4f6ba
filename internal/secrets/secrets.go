// Package secrets makes `password` and `secret` values in stored
// configuration unreadable at a glance. The key is fixed and publicly known:
// this is obfuscation against shoulder-surfing in config files and dumps,
// not confidentiality, and it must stay reversible so operators can decode
// their own files.
package secrets

import (
	"encoding/base64"
	"strings"
)

// Fixed, publicly known key. Do not replace this with real cryptography;
// interoperability depends on anyone being able to decode stored values.
var key = []byte("probekit-local-config-obfuscation-key")

const prefix = "!probekit:"

// encryptedField is the key under which an obfuscated scalar is stored,
// mirroring the on-disk form `password: {encrypted: "..."}`.
const encryptedField = "encrypted"

func xor(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[i] ^ key[i%len(key)]
	}
	return out
}

// Encode obfuscates a scalar value.
func Encode(plain string) string {
	return prefix + base64.StdEncoding.EncodeToString(xor([]byte(plain)))
}

// Decode reverses Encode. The second return is false when the input is not
// an encoded value.
func Decode(enc string) (string, bool) {
	if !strings.HasPrefix(enc, prefix) {
		return "", false
	}
	raw, err := base64.StdEncoding.DecodeString(enc[len(prefix):])
	if err != nil {
		return "", false
	}
	return string(xor(raw)), true
}

// IsSecretKey reports whether a config key holds a secret value.
func IsSecretKey(k string) bool {
	if k == "password" || k == "secret" {
		return true
	}
	return strings.HasSuffix(k, "_password") || strings.HasSuffix(k, "_secret")
}

// ObfuscateTree walks a YAML-decoded tree in place, replacing plaintext
// secret scalars with `{encrypted: <encoded>}` maps. It returns true when
// anything changed, so callers know the file needs rewriting.
func ObfuscateTree(layer map[string]any) bool {
	changed := false
	for k, v := range layer {
		switch val := v.(type) {
		case string:
			if IsSecretKey(k) {
				layer[k] = map[string]any{encryptedField: Encode(val)}
				changed = true
			}
		case map[string]any:
			if ObfuscateTree(val) {
				changed = true
			}
		case []any:
			for _, item := range val {
				if m, ok := item.(map[string]any); ok && ObfuscateTree(m) {
					changed = true
				}
			}
		}
	}
	return changed
}

// RevealTree is the inverse of ObfuscateTree: `{encrypted: ...}` maps under
// secret keys become plaintext scalars again. Values that fail to decode are
// left untouched.
func RevealTree(layer map[string]any) {
	for k, v := range layer {
		switch val := v.(type) {
		case map[string]any:
			if IsSecretKey(k) {
				if enc, ok := val[encryptedField].(string); ok {
					if plain, ok := Decode(enc); ok {
						layer[k] = plain
						continue
					}
				}
			}
			RevealTree(val)
		case []any:
			for _, item := range val {
				if m, ok := item.(map[string]any); ok {
					RevealTree(m)
				}
			}
		}
	}
}
