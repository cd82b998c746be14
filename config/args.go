package config

import (
	"fmt"
	"strconv"
	"strings"
)

const templateMapOption = "--template:map"

// ReorderArgs hoists every --template:map entry, with its value tokens, right
// after the configuration name. Other tokens keep their relative order.
func ReorderArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	isValue := func(i int) bool {
		return i < len(args) && !strings.HasPrefix(args[i], "-")
	}
	var templates, rest []string
	for i := 1; i < len(args); i++ {
		tok := args[i]
		switch {
		case tok == templateMapOption:
			templates = append(templates, tok)
			if isValue(i + 1) {
				i++
				templates = append(templates, args[i])
				if !strings.Contains(args[i], "=") && isValue(i+1) {
					i++
					templates = append(templates, args[i])
				}
			}
		case strings.HasPrefix(tok, templateMapOption+"="):
			templates = append(templates, tok)
		default:
			rest = append(rest, tok)
		}
	}
	out := make([]string, 0, len(args))
	out = append(out, args[0])
	out = append(out, templates...)
	return append(out, rest...)
}

// extractTemplates removes the --template:map entries from tokens and returns
// them as a key to target map.
func extractTemplates(config string, tokens []string) (map[string]string, []string, error) {
	templates := make(map[string]string)
	var rest []string
	add := func(key, target string) error {
		if key == "" || target == "" {
			return newConfigError(config, "Invalid %s value '%s=%s'", templateMapOption, key, target)
		}
		templates[key] = target
		return nil
	}
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case strings.HasPrefix(tok, templateMapOption+"="):
			key, target, _ := strings.Cut(strings.TrimPrefix(tok, templateMapOption+"="), "=")
			if err := add(key, target); err != nil {
				return nil, nil, err
			}
		case tok == templateMapOption:
			if i+1 >= len(tokens) || strings.HasPrefix(tokens[i+1], "-") {
				return nil, nil, newConfigError(config, "Missing value for %s", templateMapOption)
			}
			i++
			if key, target, ok := strings.Cut(tokens[i], "="); ok {
				if err := add(key, target); err != nil {
					return nil, nil, err
				}
				continue
			}
			key := tokens[i]
			if i+1 >= len(tokens) || strings.HasPrefix(tokens[i+1], "-") {
				return nil, nil, newConfigError(config, "Missing target for %s %s", templateMapOption, key)
			}
			i++
			if err := add(key, tokens[i]); err != nil {
				return nil, nil, err
			}
		default:
			rest = append(rest, tok)
		}
	}
	return templates, rest, nil
}

// parseOptionName splits "{device}identifier:n:name" into its parts. Every
// part but the name is optional.
func parseOptionName(raw string) (device, qualifier, name string, err error) {
	if strings.HasPrefix(raw, "{") {
		end := strings.Index(raw, "}")
		if end < 0 {
			return "", "", "", fmt.Errorf("invalid option name '%s'", raw)
		}
		device, raw = raw[1:end], raw[end+1:]
	}
	parts := strings.Split(raw, ":")
	switch len(parts) {
	case 1:
		name = parts[0]
	case 2:
		qualifier, name = parts[0], parts[1]
	case 3:
		if n, convErr := strconv.Atoi(parts[1]); convErr != nil || n < 1 {
			return "", "", "", fmt.Errorf("invalid option name '%s'", raw)
		}
		qualifier, name = parts[0]+":"+parts[1], parts[2]
	default:
		return "", "", "", fmt.Errorf("invalid option name '%s'", raw)
	}
	if name == "" || (len(parts) > 1 && qualifier == "") {
		return "", "", "", fmt.Errorf("invalid option name '%s'", raw)
	}
	return device, qualifier, name, nil
}

// splitQualifier returns the identifier and appearance of a qualifier. An
// appearance of 0 matches every appearance.
func splitQualifier(qualifier string) (string, int) {
	id, n, ok := strings.Cut(qualifier, ":")
	if !ok {
		return qualifier, 0
	}
	appearance, _ := strconv.Atoi(n)
	return id, appearance
}

// isDryRun reports whether the tokens request a dry run.
func isDryRun(tokens []string) bool {
	dryRun := false
	for _, tok := range tokens {
		if !strings.HasPrefix(tok, "-") {
			continue
		}
		switch strings.TrimLeft(tok, "-") {
		case "dry-run", "dry-run=true":
			dryRun = true
		case "no-dry-run", "dry-run=false":
			dryRun = false
		}
	}
	return dryRun
}
