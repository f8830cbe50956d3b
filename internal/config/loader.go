package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultEnvFile = ".env"

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// envFilePattern extracts the env_file key before expansion so the dotenv
// file can feed the expansion itself.
var envFilePattern = regexp.MustCompile(`(?m)^env_file:\s*["']?([^"'\n#]+?)["']?\s*(?:#.*)?$`)

// dotenvOwned records the variables a dotenv file has set, so a reload can
// replace them while values from the real environment keep priority.
var (
	dotenvMu    sync.Mutex
	dotenvOwned = map[string]bool{}
)

// Load reads a YAML configuration file, loads the dotenv file, expands
// environment variables, and parses it into a Config struct.
// Variables already present in the process environment win over the dotenv
// file; variables that came from the dotenv file follow its edits on reload.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := loadEnvFile(path, raw); err != nil {
		return nil, err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := expandEnv(&doc); err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", path, err)
	}

	var cfg Config
	if doc.Kind == 0 {
		return &cfg, nil
	}
	if err := doc.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &cfg, nil
}

// EnvFilePath returns the dotenv file used by the config at configPath: the
// file named by env_file, or .env next to the config. The file may not exist.
func EnvFilePath(configPath string) string {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return envFileName(configPath, nil)
	}
	return envFileName(configPath, raw)
}

func envFileName(configPath string, raw []byte) string {
	name := defaultEnvFile
	if m := envFilePattern.FindSubmatch(raw); m != nil {
		name = string(m[1])
	}
	if !filepath.IsAbs(name) {
		name = filepath.Join(filepath.Dir(configPath), name)
	}
	return name
}

// loadEnvFile loads the dotenv file named by env_file, or the default .env
// next to the config file. An explicitly named file must exist.
func loadEnvFile(configPath string, raw []byte) error {
	name := envFileName(configPath, raw)
	explicit := envFilePattern.Match(raw)

	if _, err := os.Stat(name); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: env file %s: %w", name, err)
	}

	values, err := godotenv.Read(name)
	if err != nil {
		return fmt.Errorf("config: loading env file %s: %w", name, err)
	}

	dotenvMu.Lock()
	defer dotenvMu.Unlock()
	for k, v := range values {
		if _, set := os.LookupEnv(k); set && !dotenvOwned[k] {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("config: setting %s: %w", k, err)
		}
		dotenvOwned[k] = true
	}
	return nil
}

// expandEnv replaces ${VAR} and ${VAR:-default} patterns in the scalar
// values of a parsed YAML tree, so comments are never expanded.
// Returns an error listing all unresolved variables (no default, no env value).
func expandEnv(node *yaml.Node) error {
	var errs []error
	walkScalars(node, func(n *yaml.Node) {
		if !envPattern.MatchString(n.Value) {
			return
		}
		n.Value = envPattern.ReplaceAllStringFunc(n.Value, func(match string) string {
			subs := envPattern.FindStringSubmatch(match)
			name := subs[1]
			if value, ok := os.LookupEnv(name); ok {
				return value
			}
			// An empty default still counts as a default: ${VAR:-}.
			if strings.Contains(match, ":-") {
				return subs[2]
			}
			errs = append(errs, fmt.Errorf("line %d: unresolved variable: %s", n.Line, name))
			return match
		})
		// Plain scalars get their type resolved again from the expanded
		// value, so admin_id: ${ADMIN_ID} still decodes as an integer.
		if n.Style&(yaml.TaggedStyle|yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle|yaml.LiteralStyle|yaml.FoldedStyle) == 0 {
			n.Tag = ""
		}
	})
	return errors.Join(errs...)
}

func walkScalars(n *yaml.Node, fn func(*yaml.Node)) {
	if n == nil {
		return
	}
	if n.Kind == yaml.ScalarNode {
		fn(n)
		return
	}
	for _, c := range n.Content {
		walkScalars(c, fn)
	}
}
