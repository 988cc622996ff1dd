package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/paneldiff/paneldiff/internal/config"
	"github.com/paneldiff/paneldiff/internal/history"
	"github.com/paneldiff/paneldiff/internal/panel"
	"github.com/paneldiff/paneldiff/internal/reconcile"
	"github.com/paneldiff/paneldiff/internal/resolve"
	"github.com/paneldiff/paneldiff/internal/session"
	"github.com/paneldiff/paneldiff/internal/store"
)

// Default session and surface identifiers when the caller does not pass
// --session / --surface. One host chat window maps to one of each.
const (
	DefaultSession = "default"
	DefaultSurface = "default"
)

// loadSchema loads the panel configuration and materializes the runtime
// schema. An empty path falls back to the stock panel set.
func loadSchema(configPath string) (*config.Document, *panel.Schema, error) {
	var doc *config.Document
	if configPath == "" {
		doc = config.Default()
	} else {
		var err error
		doc, err = config.Load(configPath)
		if err != nil {
			return nil, nil, err
		}
	}

	schema, err := doc.Build()
	if err != nil {
		return nil, nil, err
	}
	return doc, schema, nil
}

// newRunLogger builds the slog logger commands hand to the engine. Debug
// level under --verbose, Info otherwise. w should be the command's stderr so
// log lines never corrupt JSON on stdout.
func newRunLogger(verbose bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openSurfaces picks the surface-state backend: the SQLite store itself, or
// Redis when --redis is set (multi-process hosts sharing one surface). The
// returned closer is nil for the SQLite case, which closes with the store.
func openSurfaces(st *store.Store, redisURL string) (reconcile.SurfaceStore, io.Closer, error) {
	if redisURL == "" {
		return st, nil, nil
	}
	rs, err := session.New(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return rs, rs, nil
}

// newController assembles a controller over the given schema and stores,
// with a resolver and history log sharing the logger.
func newController(
	schema *panel.Schema,
	st *store.Store,
	surfaces reconcile.SurfaceStore,
	surfaceID string,
	log *slog.Logger,
) *reconcile.Controller {
	resolver := resolve.New(schema, resolve.WithLogger(log))
	hist := history.NewLog(st, history.WithLogger(log))
	return reconcile.New(schema, resolver, surfaces, hist, surfaceID,
		reconcile.WithLogger(log))
}
