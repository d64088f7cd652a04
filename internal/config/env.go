package config

import (
	"fmt"
	"os"
	"strings"
)

// expandEnv replaces ${VAR} and ${VAR:-default} with values from the
// environment and $$ with a literal $. Any other $ is left as is, so tokens
// and URIs containing $ survive. An unset ${VAR} without a default is an
// error.
func expandEnv(data string) (string, error) {
	var out strings.Builder
	out.Grow(len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '$' || i+1 == len(data) {
			out.WriteByte(data[i])
			continue
		}
		switch data[i+1] {
		case '$':
			out.WriteByte('$')
			i++
		case '{':
			end := strings.IndexByte(data[i+2:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated ${ at byte %d", i)
			}
			value, err := lookupEnv(data[i+2 : i+2+end])
			if err != nil {
				return "", err
			}
			out.WriteString(value)
			i += 2 + end
		default:
			out.WriteByte('$')
		}
	}
	return out.String(), nil
}

func lookupEnv(expr string) (string, error) {
	name, def, hasDefault := strings.Cut(expr, ":-")
	if !validEnvName(name) {
		return "", fmt.Errorf("invalid environment variable name %q", name)
	}
	if value, ok := os.LookupEnv(name); ok && value != "" {
		return value, nil
	}
	if hasDefault {
		return def, nil
	}
	return "", fmt.Errorf("environment variable %q is not set", name)
}

func validEnvName(name string) bool {
	if name == "" {
		return false
	}
	for i, c := range name {
		switch {
		case c == '_', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
