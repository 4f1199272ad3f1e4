package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/metalagman/rolecall/internal/backend"
	"github.com/metalagman/rolecall/internal/backend/builtin"
	"github.com/metalagman/rolecall/internal/config"
	"github.com/metalagman/rolecall/internal/db"
)

// errRunIncomplete makes the process exit non-zero when a task did not complete.
var errRunIncomplete = errors.New("run did not complete")

func openStore(path string) (*db.Store, func(), error) {
	conn, err := db.Open(path)
	if err != nil {
		return nil, func() {}, err
	}
	return db.NewStore(conn), func() { _ = conn.Close() }, nil
}

func newRegistry(disabled []string) *backend.Registry {
	r := builtin.NewRegistry()
	r.Disable(disabled...)
	return r
}

// documentSource maps the optional path argument to a config source.
// "-" reads the document from stdin.
func documentSource(args []string, stdin io.Reader, strict bool) (config.Source, error) {
	src := config.Source{Strict: strict}
	if len(args) == 0 {
		return src, nil
	}
	if args[0] != "-" {
		src.Path = args[0]
		return src, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return config.Source{}, fmt.Errorf("read document from stdin: %w", err)
	}
	if len(data) == 0 {
		return config.Source{}, &config.ParseError{Source: "stdin", Msg: "document is empty"}
	}
	src.Inline = data
	return src, nil
}

func workDir(configured string) string {
	if configured != "" {
		return configured
	}
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}
