package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Source selects where a document comes from.
// Precedence: Inline, Node, Mapping > Path > DefaultFileName in Dir.
type Source struct {
	// Inline is a YAML document.
	Inline []byte
	// Node is a parsed YAML document; key order is kept.
	Node *yaml.Node
	// Mapping is a raw mapping. Go maps are unordered, so roles and tasks
	// are taken in lexical key order.
	Mapping map[string]any
	// Path names a document file.
	Path string
	// Dir is searched for DefaultFileName when no explicit source is set.
	// Empty means the working directory.
	Dir string
	// Strict disables the DefaultFileName lookup.
	Strict bool
}

func (s Source) hasInline() bool {
	return len(s.Inline) > 0 || s.Node != nil || s.Mapping != nil
}

// Load resolves the source and parses it.
func Load(src Source) (*Configuration, error) {
	switch {
	case len(src.Inline) > 0:
		if src.Path != "" {
			log.Debug().Str("path", src.Path).Msg("config: inline document given, ignoring path")
		}
		return parseBytes(src.Inline, "inline")
	case src.Node != nil:
		return ParseNode(src.Node)
	case src.Mapping != nil:
		data, err := yaml.Marshal(src.Mapping)
		if err != nil {
			return nil, &ParseError{Source: "mapping", Msg: "encode mapping", Err: err}
		}
		return parseBytes(data, "mapping")
	case src.Path != "":
		return LoadFile(src.Path)
	}

	if src.Strict {
		return nil, &NotFoundError{Msg: "no explicit source given and default lookup is disabled"}
	}

	path, err := DefaultPath(src.Dir)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", path).Msg("config: using default document")
	return LoadFile(path)
}

// LoadFile reads and parses a document file.
func LoadFile(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, &ParseError{Source: path, Msg: "read file", Err: err}
	}
	return parseBytes(data, path)
}

// DefaultPath returns DefaultFileName inside dir if it exists.
func DefaultPath(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		dir = wd
	}
	path := filepath.Join(dir, DefaultFileName)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", &NotFoundError{Path: path}
	}
	return path, nil
}
