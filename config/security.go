package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Limits applied to every config layer and environment value.
const (
	maxLayerBytes  = 10 << 20
	maxLayerDepth  = 100
	maxYAMLAliases = 64
	maxEnvValueLen = 10000
	maxPathLen     = 4096
)

// layerFormat returns "json" or "yaml" for a supported layer path.
func layerFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json", nil
	case ".yaml", ".yml":
		return "yaml", nil
	}
	return "", fmt.Errorf("only JSON or YAML config files allowed: %s", path)
}

// checkLayerPath rejects empty, oversized, escaping or unsupported paths.
// Relative paths must stay below the working directory.
func checkLayerPath(path string) error {
	if path == "" {
		return fmt.Errorf("empty config path")
	}
	if len(path) > maxPathLen {
		return fmt.Errorf("path too long: %d > %d", len(path), maxPathLen)
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("cannot resolve absolute path: %w", err)
	}

	if filepath.IsAbs(path) {
		if strings.Contains(filepath.ToSlash(abs), "..") {
			return fmt.Errorf("path traversal not allowed: %s", path)
		}
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("cannot get working directory: %w", err)
		}
		rel, err := filepath.Rel(cwd, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			return fmt.Errorf("path traversal not allowed: %s resolves outside working directory", path)
		}
	}

	_, err = layerFormat(path)
	return err
}

// readLayer reads one regular config file no larger than maxLayerBytes.
func readLayer(path string) ([]byte, error) {
	if err := checkLayerPath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > maxLayerBytes {
		return nil, fmt.Errorf("config file too large: %d bytes > %d", info.Size(), maxLayerBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}
	return data, nil
}

// writeLayer writes a config file readable only by its owner.
func writeLayer(path string, data []byte) error {
	if err := checkLayerPath(path); err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}
	if len(data) > maxLayerBytes {
		return fmt.Errorf("config data too large: %d bytes > %d", len(data), maxLayerBytes)
	}
	return os.WriteFile(path, data, 0600)
}

// checkEnvValue bounds the length of an override and rejects NUL bytes.
func checkEnvValue(key, value string) error {
	if len(value) > maxEnvValueLen {
		return fmt.Errorf("environment variable %s too long: %d > %d", key, len(value), maxEnvValueLen)
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("null byte in environment variable %s", key)
	}
	return nil
}

// checkLayerDepth enforces maxLayerDepth on a layer before it is decoded
// into Config. YAML layers are also limited to maxYAMLAliases aliases.
func checkLayerDepth(format string, data []byte) error {
	if format == "yaml" {
		return checkYAMLDepth(data)
	}
	return checkJSONDepth(data)
}

// checkJSONDepth scans brackets outside string literals.
func checkJSONDepth(data []byte) error {
	depth := 0
	inString, escaped := false, false

	for _, b := range data {
		switch {
		case escaped:
			escaped = false
		case inString && b == '\\':
			escaped = true
		case b == '"':
			inString = !inString
		case inString:
		case b == '{' || b == '[':
			depth++
			if depth > maxLayerDepth {
				return fmt.Errorf("JSON nesting too deep: %d > %d", depth, maxLayerDepth)
			}
		case b == '}' || b == ']':
			depth--
			if depth < 0 {
				return fmt.Errorf("malformed JSON: unbalanced brackets")
			}
		}
	}

	if depth != 0 {
		return fmt.Errorf("malformed JSON: unclosed brackets (depth=%d)", depth)
	}
	return nil
}

// checkYAMLDepth parses the layer into a node tree and walks it. Aliases are
// counted but not followed.
func checkYAMLDepth(data []byte) error {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("malformed YAML: %w", err)
	}

	aliases := 0
	var walk func(n *yaml.Node, depth int) error
	walk = func(n *yaml.Node, depth int) error {
		switch n.Kind {
		case yaml.AliasNode:
			aliases++
			if aliases > maxYAMLAliases {
				return fmt.Errorf("YAML uses too many aliases: %d > %d", aliases, maxYAMLAliases)
			}
			return nil
		case yaml.MappingNode, yaml.SequenceNode:
			depth++
			if depth > maxLayerDepth {
				return fmt.Errorf("YAML nesting too deep: %d > %d", depth, maxLayerDepth)
			}
		}
		for _, child := range n.Content {
			if err := walk(child, depth); err != nil {
				return err
			}
		}
		return nil
	}

	return walk(&root, 0)
}
