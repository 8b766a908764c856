package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ReadOverrides reads the persistent overrides file. A missing file is empty.
func ReadOverrides(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]interface{}{}, nil
		}
		return nil, errors.Wrap(err, "read overrides")
	}
	out := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrapf(err, "parse overrides %s", path)
	}
	return out, nil
}

// SetOverride stores key=value in the overrides file. String-typed keys are
// stored verbatim; other keys are parsed as YAML scalars.
func SetOverride(path, key, value string) error {
	def, ok := Defaults()[key]
	if !ok {
		return errors.Errorf("unknown config key %q", key)
	}

	var typed interface{} = value
	if _, isString := def.(string); !isString {
		if err := yaml.Unmarshal([]byte(value), &typed); err != nil {
			return errors.Wrapf(err, "parse value for %s", key)
		}
	}

	m, err := ReadOverrides(path)
	if err != nil {
		return err
	}
	setNested(m, strings.Split(key, "."), typed)
	return writeOverrides(path, m)
}

// UnsetOverride removes key from the overrides file.
func UnsetOverride(path, key string) error {
	m, err := ReadOverrides(path)
	if err != nil {
		return err
	}
	parts := strings.Split(key, ".")
	parent := m
	for _, p := range parts[:len(parts)-1] {
		child, ok := parent[p].(map[string]interface{})
		if !ok {
			return nil
		}
		parent = child
	}
	delete(parent, parts[len(parts)-1])
	if len(parts) > 1 {
		if section, ok := m[parts[0]].(map[string]interface{}); ok && len(section) == 0 {
			delete(m, parts[0])
		}
	}
	return writeOverrides(path, m)
}

// OverrideKeys lists the dotted keys present in the overrides file.
func OverrideKeys(path string) ([]string, error) {
	m, err := ReadOverrides(path)
	if err != nil {
		return nil, err
	}
	var keys []string
	var walk func(prefix string, m map[string]interface{})
	walk = func(prefix string, m map[string]interface{}) {
		for k, v := range m {
			full := k
			if prefix != "" {
				full = prefix + "." + k
			}
			if child, ok := v.(map[string]interface{}); ok {
				walk(full, child)
				continue
			}
			keys = append(keys, full)
		}
	}
	walk("", m)
	sort.Strings(keys)
	return keys, nil
}

func setNested(m map[string]interface{}, parts []string, v interface{}) {
	for _, p := range parts[:len(parts)-1] {
		child, ok := m[p].(map[string]interface{})
		if !ok {
			child = map[string]interface{}{}
			m[p] = child
		}
		m = child
	}
	m[parts[len(parts)-1]] = v
}

func writeOverrides(path string, m map[string]interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "create state dir")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Wrap(err, "open overrides")
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return errors.Wrap(err, "write overrides")
	}
	return enc.Close()
}
