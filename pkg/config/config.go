// Package config parses the server's configuration file: whitespace-
// separated directives, one per line, exactly as described in spec.md
// §6 and modeled on the directive grammar original_source/redis parses
// at startup. There is no YAML/TOML/flags library involved because the
// format itself is not any of those — it is this fixed directive list.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// SavePolicy is one ⟨seconds, changes⟩ save rule: a background save is
// due once at least Changes mutations have accumulated and more than
// Seconds have passed since the last save.
type SavePolicy struct {
	Seconds int
	Changes int
}

// LogLevel mirrors the three levels the directive grammar accepts.
type LogLevel string

const (
	LogDebug   LogLevel = "debug"
	LogNotice  LogLevel = "notice"
	LogWarning LogLevel = "warning"
)

// Config holds every directive the server recognizes, pre-seeded with
// the documented defaults.
type Config struct {
	Port          int
	Bind          string
	Timeout       int
	Databases     int
	Dir           string
	LogLevel      LogLevel
	LogFile       string
	SaveParams    []SavePolicy
	GlueOutputBuf bool
	Daemonize     bool

	IsSlave    bool
	MasterHost string
	MasterPort int
}

// Default returns the configuration the server runs with when no
// config file is given, matching the defaults in spec.md §6.
func Default() *Config {
	return &Config{
		Port:      6379,
		Timeout:   300,
		Databases: 16,
		Dir:       ".",
		LogLevel:  LogNotice,
		LogFile:   "stdout",
		SaveParams: []SavePolicy{
			{Seconds: 3600, Changes: 1},
			{Seconds: 300, Changes: 100},
			{Seconds: 60, Changes: 10000},
		},
	}
}

// Load reads directives from path, starting from Default() and
// overriding anything the file sets. A missing save directive in the
// file leaves the default three-tier policy in place; any save
// directive present replaces it entirely (append, don't merge).
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return parse(f, path)
}

func parse(r io.Reader, path string) (*Config, error) {
	cfg := Default()
	sawSave := false

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		directive := fields[0]
		args := fields[1:]

		if directive == "save" && !sawSave {
			cfg.SaveParams = nil
			sawSave = true
		}

		if err := apply(cfg, directive, args); err != nil {
			return nil, fmt.Errorf("config: %s:%d: %w", path, line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func apply(cfg *Config, directive string, args []string) error {
	switch directive {
	case "timeout":
		n, err := expectInt(directive, args, 1)
		if err != nil {
			return err
		}
		if n < 1 {
			return fmt.Errorf("timeout must be >= 1, got %d", n)
		}
		cfg.Timeout = n

	case "port":
		n, err := expectInt(directive, args, 1)
		if err != nil {
			return err
		}
		if n < 1 || n > 65535 {
			return fmt.Errorf("port out of range: %d", n)
		}
		cfg.Port = n

	case "bind":
		if len(args) != 1 {
			return fmt.Errorf("bind takes exactly one address")
		}
		cfg.Bind = args[0]

	case "save":
		if len(args) != 2 {
			return fmt.Errorf("save takes <seconds> <changes>")
		}
		seconds, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("save seconds: %w", err)
		}
		changes, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("save changes: %w", err)
		}
		cfg.SaveParams = append(cfg.SaveParams, SavePolicy{Seconds: seconds, Changes: changes})

	case "dir":
		if len(args) != 1 {
			return fmt.Errorf("dir takes exactly one path")
		}
		cfg.Dir = args[0]

	case "loglevel":
		if len(args) != 1 {
			return fmt.Errorf("loglevel takes exactly one level")
		}
		level := LogLevel(args[0])
		switch level {
		case LogDebug, LogNotice, LogWarning:
			cfg.LogLevel = level
		default:
			return fmt.Errorf("unknown loglevel %q", args[0])
		}

	case "logfile":
		if len(args) != 1 {
			return fmt.Errorf("logfile takes exactly one path")
		}
		cfg.LogFile = args[0]

	case "databases":
		n, err := expectInt(directive, args, 1)
		if err != nil {
			return err
		}
		if n < 1 {
			return fmt.Errorf("databases must be >= 1, got %d", n)
		}
		cfg.Databases = n

	case "slaveof":
		if len(args) != 2 {
			return fmt.Errorf("slaveof takes <host> <port>")
		}
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("slaveof port: %w", err)
		}
		cfg.IsSlave = true
		cfg.MasterHost = args[0]
		cfg.MasterPort = port

	case "glueoutputbuf":
		b, err := expectBool(directive, args)
		if err != nil {
			return err
		}
		cfg.GlueOutputBuf = b

	case "daemonize":
		b, err := expectBool(directive, args)
		if err != nil {
			return err
		}
		cfg.Daemonize = b

	default:
		return fmt.Errorf("unknown directive %q", directive)
	}
	return nil
}

func expectInt(directive string, args []string, arity int) (int, error) {
	if len(args) != arity {
		return 0, fmt.Errorf("%s takes exactly %d argument(s)", directive, arity)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", directive, err)
	}
	return n, nil
}

func expectBool(directive string, args []string) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("%s takes exactly one argument", directive)
	}
	switch args[0] {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	default:
		return false, fmt.Errorf("%s: expected yes|no, got %q", directive, args[0])
	}
}
