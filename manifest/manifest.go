// Package manifest handles lox.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "lox.toml"

// Defaults applied to fields the manifest leaves out.
const (
	DefaultFramesMax = 64
	MaxFramesMax     = 1024
	DefaultPrompt    = "> "
	DefaultHistory   = ".lox/history.db"
	DefaultAddr      = "localhost:4567"
)

// Manifest represents a lox.toml project configuration.
type Manifest struct {
	Project Project      `toml:"project"`
	VM      VMConfig     `toml:"vm"`
	REPL    REPLConfig   `toml:"repl"`
	Log     LogConfig    `toml:"log"`
	Server  ServerConfig `toml:"server"`

	// Dir is the directory containing the lox.toml file (set at load time).
	Dir string `toml:"-"`

	// Unknown lists keys present in the file that no field consumed.
	Unknown []string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name"`
	Entry string `toml:"entry"`
}

// VMConfig configures each interpreter instance.
type VMConfig struct {
	FramesMax int  `toml:"frames-max"`
	Trace     bool `toml:"trace"`
}

// REPLConfig configures the interactive loop.
type REPLConfig struct {
	Prompt  string `toml:"prompt"`
	History string `toml:"history"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// ServerConfig configures the evaluation service.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Default returns the configuration used when no lox.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.VM.FramesMax = DefaultFramesMax
	m.applyDefaults()
	return m
}

// Load parses a lox.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes manifest text, fills defaults and validates ranges.
func Parse(data string) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(data, &m)
	if err != nil {
		return nil, err
	}
	for _, key := range md.Undecoded() {
		m.Unknown = append(m.Unknown, key.String())
	}

	if !md.IsDefined("vm", "frames-max") {
		m.VM.FramesMax = DefaultFramesMax
	} else if m.VM.FramesMax < 1 || m.VM.FramesMax > MaxFramesMax {
		return nil, fmt.Errorf("vm.frames-max must be between 1 and %d, got %d", MaxFramesMax, m.VM.FramesMax)
	}
	if m.Log.Verbosity < 0 {
		return nil, fmt.Errorf("log.verbosity must not be negative, got %d", m.Log.Verbosity)
	}

	m.applyDefaults()
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.REPL.Prompt == "" {
		m.REPL.Prompt = DefaultPrompt
	}
	if m.REPL.History == "" {
		m.REPL.History = DefaultHistory
	}
	if m.Server.Addr == "" {
		m.Server.Addr = DefaultAddr
	}
}

// FindAndLoad walks up from startDir to find a lox.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// resolve joins a manifest-relative path onto Dir.
func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// EntryPath returns the absolute path of the entry script, or "" if none is
// configured.
func (m *Manifest) EntryPath() string {
	return m.resolve(m.Project.Entry)
}

// HistoryPath returns the path of the REPL history database.
func (m *Manifest) HistoryPath() string {
	return m.resolve(m.REPL.History)
}

// LogPath returns the log file path, or nil to log to stderr.
func (m *Manifest) LogPath() *string {
	if m.Log.File == "" {
		return nil
	}
	p := m.resolve(m.Log.File)
	return &p
}
