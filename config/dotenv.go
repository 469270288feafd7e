package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

// Var is one assignment from a .env file.
type Var struct {
	Key string `json:"key"`
	Val string `json:"val"`
}

// ParseDotEnvFile parses a .env file. A missing file yields no variables.
func ParseDotEnvFile(filename string) ([]Var, error) {
	buf, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return []Var{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "config: read %s", filename)
	}
	return ParseDotEnv(buf), nil
}

// ParseDotEnv parses KEY=value lines. Blank lines and # comments are skipped,
// surrounding quotes are removed and ${NAME}, ${NAME:-default} and
// ${env:NAME} references are expanded. A reference that cannot be resolved
// is kept as written.
func ParseDotEnv(buf []byte) []Var {
	vars := []Var{}
	values := make(map[string]string)
	for _, line := range strings.Split(string(buf), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		v := parseAssignment(line)
		if v.Key == "" {
			continue
		}
		v.Val = expand(v.Val, values)
		values[v.Key] = v.Val
		vars = append(vars, v)
	}
	// later definitions may complete earlier references
	for i := range vars {
		vars[i].Val = expand(vars[i].Val, values)
	}
	return vars
}

// LoadDotEnv copies the variables of a .env file into the process
// environment. Variables already set are left alone.
func LoadDotEnv(filename string) (int, error) {
	vars, err := ParseDotEnvFile(filename)
	if err != nil {
		return 0, err
	}
	var n int
	for _, v := range vars {
		if _, exists := os.LookupEnv(v.Key); exists {
			continue
		}
		if err := os.Setenv(v.Key, v.Val); err != nil {
			return n, errors.Wrapf(err, "config: set %s", v.Key)
		}
		n++
	}
	return n, nil
}

func parseAssignment(line string) Var {
	key, val, ok := strings.Cut(line, "=")
	if !ok {
		return Var{Key: strings.TrimSpace(line)}
	}
	return Var{Key: strings.TrimSpace(key), Val: dequote(strings.TrimSpace(val))}
}

func dequote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// expand replaces ${...} references in s.
func expand(s string, values map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var out strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			out.WriteString(s)
			return out.String()
		}
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			out.WriteString(s)
			return out.String()
		}
		end += start
		out.WriteString(s[:start])
		ref := s[start : end+1]
		out.WriteString(resolve(ref, values))
		s = s[end+1:]
	}
}

func resolve(ref string, values map[string]string) string {
	name, def, _ := strings.Cut(ref[2:len(ref)-1], ":-")
	if name == "" {
		return ref
	}
	var val string
	if envName, ok := strings.CutPrefix(name, "env:"); ok {
		val = os.Getenv(envName)
	} else if v, ok := values[name]; ok {
		val = v
	} else {
		val = os.Getenv(name)
	}
	switch {
	case val != "":
		return val
	case def != "":
		return def
	default:
		return ref
	}
}
