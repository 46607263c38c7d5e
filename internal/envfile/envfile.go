// Package envfile reads the .env style file whose variables are handed to the test harness.
package envfile

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/conn-castle/bundlebuilder/internal/messages"
)

// Parse reads KEY=VALUE lines. Blank lines, # comments and an `export ` prefix are
// accepted; single and double quotes are stripped, and double quotes honor \n and \".
func Parse(content string) (map[string]string, error) {
	env := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(content))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		key, value, ok, err := parseLine(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf(messages.EnvfileLineErrorFmt, lineNo, err)
		}
		if ok {
			env[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf(messages.EnvfileReadFailedFmt, err)
	}
	return env, nil
}

// Load reads path and returns its variables as sorted KEY=VALUE pairs, ready for exec.
// An empty path yields no variables.
func Load(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf(messages.ConfigMissingEnvFileFmt, path, err)
	}
	env, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf(messages.ConfigInvalidEnvFileFmt, path, err)
	}
	return Environ(env), nil
}

// Environ flattens env into sorted KEY=VALUE pairs.
func Environ(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for key, value := range env {
		out = append(out, key+"="+value)
	}
	sort.Strings(out)
	return out
}

func parseLine(line string) (string, string, bool, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false, nil
	}
	trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "export "))
	key, value, found := strings.Cut(trimmed, "=")
	if !found {
		return "", "", false, errors.New(messages.EnvfileMissingEquals)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", false, errors.New(messages.EnvfileEmptyKey)
	}
	value, err := unquote(strings.TrimSpace(value))
	if err != nil {
		return "", "", false, err
	}
	return key, value, true, nil
}

// unquote strips one level of quoting. Anything after the closing quote must be a comment.
func unquote(value string) (string, error) {
	if value == "" || (value[0] != '"' && value[0] != '\'') {
		return value, nil
	}
	quote := value[0]
	var b strings.Builder
	for i := 1; i < len(value); i++ {
		ch := value[i]
		if quote == '"' && ch == '\\' && i+1 < len(value) {
			i++
			switch value[i] {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(value[i])
			}
			continue
		}
		if ch == quote {
			rest := strings.TrimSpace(value[i+1:])
			if rest != "" && !strings.HasPrefix(rest, "#") {
				return "", errors.New(messages.EnvfileQuotedSuffix)
			}
			return b.String(), nil
		}
		b.WriteByte(ch)
	}
	return "", errors.New(messages.EnvfileUnterminatedQuote)
}
