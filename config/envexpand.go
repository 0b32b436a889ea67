package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])([^}]*))?\}`)

// ExpandEnv replaces environment references in input.
//
//   - ${VAR} expands to the value, or empty if unset
//   - ${VAR:-default} uses default when VAR is unset or empty
//   - ${VAR:?message} fails when VAR is unset or empty
//
// All missing required variables are reported together.
func ExpandEnv(input string) (string, error) {
	var missing []string
	out := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, op, arg := groups[1], groups[2], groups[3]

		if value, ok := os.LookupEnv(name); ok && value != "" {
			return value
		}
		switch op {
		case "-":
			return arg
		case "?":
			if arg == "" {
				arg = "required"
			}
			missing = append(missing, fmt.Sprintf("%s: %s", name, arg))
		}
		return ""
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(missing, "; "))
	}
	return out, nil
}
