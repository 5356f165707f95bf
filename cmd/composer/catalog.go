package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"composer/export"
	"composer/layout"
	"composer/markup"
	"composer/picker"
	"composer/state"
)

func catalogImport(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	log := env.Log.Named("catalog")

	if cmd.Args().Len() == 0 {
		return errors.New("no images to import have been specified")
	}
	catalog, err := picker.LoadCatalog(env.Cfg.Picker.Catalog)
	if err != nil {
		return err
	}
	im := picker.NewImporter(catalog, env.Cfg.Picker.ThumbnailSize, env.Cfg.Picker.ThumbnailQuality, log)

	var errs error
	imported := 0
	for _, path := range cmd.Args().Slice() {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		if strings.EqualFold(filepath.Ext(path), ".zip") {
			entries, err := im.ImportArchive(path, cmd.String("prefix"))
			if err != nil {
				log.Warn("Unable to import some images from archive", zap.String("file", path), zap.Error(err))
				errs = multierr.Append(errs, err)
			}
			imported += len(entries)
			continue
		}
		if _, err := im.ImportFile(path, cmd.String("caption")); err != nil {
			log.Warn("Unable to import image", zap.String("file", path), zap.Error(err))
			errs = multierr.Append(errs, err)
			continue
		}
		imported++
	}
	if imported > 0 {
		if err := catalog.Save(); err != nil {
			return multierr.Append(errs, err)
		}
	}
	log.Info("Import completed", zap.Int("imported", imported), zap.Int("failed", len(multierr.Errors(errs))),
		zap.String("catalog", catalog.Path()))
	return errs
}

func catalogList(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	log := env.Log.Named("catalog")

	catalog, err := picker.LoadCatalog(env.Cfg.Picker.Catalog)
	if err != nil {
		return err
	}
	scopeName := cmd.String("scope")
	if scopeName == "" {
		scopeName = env.Cfg.Picker.Scope
	}
	scope, err := picker.ParseScope(scopeName)
	if err != nil {
		return err
	}

	var usage picker.Usage
	if file := cmd.String("usage"); file != "" {
		src, err := export.ReadSource(file, env.Encoding)
		if err != nil {
			return err
		}
		if usage, err = countUsage(src.Content, env.Cfg.Editor.InlineImageLimit, log); err != nil {
			return err
		}
	}

	panel := picker.NewPanel(catalog, usage, env.Cfg.Picker.ThumbnailURL, env.Cfg.Picker.InspectURL, log)
	panel.SetScope(scope)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UUID\tCAPTION\tUSES\tTHUMBNAIL")
	for _, it := range panel.Visible() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", it.UUID, it.Caption, it.Uses, it.ThumbnailURL)
	}
	return tw.Flush()
}

// countUsage counts image embeddings in stored markup.
func countUsage(content string, limit int, log *zap.Logger) (picker.Usage, error) {
	doc, err := markup.ParseHTML(content)
	if err != nil {
		return nil, err
	}
	engine := layout.New(limit, log)
	engine.Track(doc)
	return engine, nil
}

func writeItems(w http.ResponseWriter, items []picker.Item) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(items)
}
