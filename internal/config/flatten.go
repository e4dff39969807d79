package config

import (
	"fmt"
	"strings"
)

// Sections are the groups `config list --section` accepts. "general" holds
// the top-level keys (data_dir, log_level, log_format).
var Sections = []string{"general", "database", "llm", "whatsapp", "telegram", "http", "pipeline", "delivery"}

// secretKeys are the dot paths whose values never print in full.
var secretKeys = map[string]bool{
	"llm.api_key":    true,
	"telegram.token": true,
	"database.dsn":   true,
}

func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Flatten turns {"llm": {"model": "x"}} into {"llm.model": "x"}. Empty nested
// objects produce no keys; arrays are leaf values.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			if prefix != "" {
				k = prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok {
				walk(k, child)
				continue
			}
			out[k] = v
		}
	}
	walk("", m)
	return out
}

// Unflatten is the inverse of Flatten. A scalar sitting where a later key
// needs an object is replaced by that object.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for key, v := range flat {
		parts := strings.Split(key, ".")
		node := out
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = v
	}
	return out
}

// MaskSecrets returns a copy of flat with secret values reduced to "***"
// plus their last four characters. Empty and non-string secrets are copied
// as they are.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		out[k] = v
		if s, ok := v.(string); ok && secretKeys[k] && s != "" {
			out[k] = mask(s)
		}
	}
	return out
}

func mask(s string) string {
	if len(s) > 4 {
		s = s[len(s)-4:]
	}
	return "***" + s
}

// FilterSection keeps the keys of flat that belong to section.
func FilterSection(flat map[string]any, section string) (map[string]any, error) {
	known := false
	for _, s := range Sections {
		known = known || s == section
	}
	if !known {
		return nil, fmt.Errorf("unknown config section %q (want one of %s)", section, strings.Join(Sections, ", "))
	}
	out := make(map[string]any)
	for k, v := range flat {
		top, _, nested := strings.Cut(k, ".")
		if (section == "general" && !nested) || (nested && top == section) {
			out[k] = v
		}
	}
	return out, nil
}

// IsKnownKey reports whether key is a setting chatpilot reads.
func IsKnownKey(key string) bool {
	m, err := ToMap(defaults())
	if err != nil {
		return false
	}
	_, ok := Flatten(m)[key]
	return ok
}
