package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"composer/persist"
	"composer/picker"
	"composer/state"
)

// serve runs revision endpoint with picker thumbnails until interrupted.
func serve(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	log := env.Log.Named("serve")
	cfg := env.Cfg.Server

	listen := cmd.String("listen")
	if listen == "" {
		listen = cfg.Listen
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
		return fmt.Errorf("unable to create database directory: %w", err)
	}
	store, err := persist.OpenStore(cfg.Database, log)
	if err != nil {
		return err
	}
	defer store.Close()

	server := persist.NewServer(store, log)
	server.SetToken(string(cfg.Token))

	router := chi.NewRouter()
	router.Mount("/", server.Handler())
	if thumbs := env.Cfg.Picker.ThumbnailURL; thumbs != "" && thumbs[0] == '/' {
		dir := filepath.Dir(env.Cfg.Picker.Catalog)
		router.Handle(thumbs+"/*", http.StripPrefix(thumbs, http.FileServer(http.Dir(dir))))
		log.Debug("Serving thumbnails", zap.String("path", thumbs), zap.String("directory", dir))
	}
	router.Get("/picker", pickerHandler(env, store, log))

	srv := &http.Server{Addr: listen, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	errs := make(chan error, 1)
	go func() {
		log.Info("Listening", zap.String("address", listen), zap.String("database", cfg.Database))
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return fmt.Errorf("unable to stop server: %w", err)
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("Server stopped")
	return nil
}

// pickerHandler lists catalog images filtered by their usage in the latest
// revision of the document given by "document" query parameter.
func pickerHandler(env *state.LocalEnv, store *persist.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		catalog, err := picker.LoadCatalog(env.Cfg.Picker.Catalog)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		scope, err := picker.ParseScope(r.URL.Query().Get("scope"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var usage picker.Usage
		if id := r.URL.Query().Get("document"); id != "" {
			rev, err := store.Latest(r.Context(), id)
			if err != nil {
				status := http.StatusInternalServerError
				if errors.Is(err, persist.ErrNotFound) {
					status = http.StatusNotFound
				}
				http.Error(w, err.Error(), status)
				return
			}
			if usage, err = countUsage(rev.Content, env.Cfg.Editor.InlineImageLimit, log); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}

		panel := picker.NewPanel(catalog, usage, env.Cfg.Picker.ThumbnailURL, env.Cfg.Picker.InspectURL, log)
		panel.SetScope(scope)
		writeItems(w, panel.Visible())
	}
}
