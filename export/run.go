package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"composer/config"
	"composer/cursor"
	"composer/editor"
	"composer/model"
	"composer/persist"
	"composer/state"
)

// Normalize rewrites markup file into canonical persisted form.
func Normalize(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env := state.EnvFromContext(ctx)
	log := env.Log.Named("normalize")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no input source has been specified")
	}
	dst := cmd.Args().Get(1)
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}
	if err := env.Rpt.StoreCopy("source/"+filepath.Base(src), src); err != nil {
		log.Warn("Unable to store source in the report", zap.Error(err))
	}

	source, err := ReadSource(src, env.Encoding)
	if err != nil {
		return err
	}
	ed := editor.New(env.EditorOptions(), nil, nil, nil, log)
	defer ed.Close()
	if err := ed.Load(source.Content, editor.Metadata{Title: source.Title}, "", 0); err != nil {
		return err
	}

	format := config.ExportFormatHTML
	if isXHTML(dst) {
		format = config.ExportFormatXHTML
	}
	data, err := Render(ed, format)
	if err != nil {
		return err
	}
	env.Rpt.StoreData("result/"+source.Name+format.Ext(), data)

	if len(dst) == 0 {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := writeFile(dst, data, env.Overwrite); err != nil {
		return err
	}
	log.Info("Document normalized", zap.String("source", src), zap.String("destination", dst), zap.Int("blocks", blockCount(ed)))
	return nil
}

// Run exports document either from a local markup file or from the server
// (latest revision) into a file named by configured template.
func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	env := state.EnvFromContext(ctx)
	log := env.Log.Named("export")

	cfg := env.Cfg.Export
	if to := cmd.String("to"); to != "" {
		if cfg.Format, err = config.ParseExportFormat(to); err != nil {
			return err
		}
	}

	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return err
	}

	ed := editor.New(env.EditorOptions(), nil, nil, nil, log)
	defer ed.Close()

	values := Values{Format: cfg.Format.String()}
	if id := cmd.String("document"); id != "" {
		rev, err := loadRevision(ctx, env, id, log)
		if err != nil {
			return err
		}
		if err := ed.LoadRevision(rev); err != nil {
			return err
		}
		values.Title, values.Date, values.Timezone = rev.Title, rev.Date, rev.Timezone
		values.Reference, values.Version, values.Document = rev.Reference, rev.Version, rev.ID
	} else {
		src := cmd.Args().Get(0)
		if len(src) == 0 {
			return errors.New("no input source has been specified")
		}
		source, err := ReadSource(src, env.Encoding)
		if err != nil {
			return err
		}
		if err := ed.Load(source.Content, editor.Metadata{Title: source.Title}, "", 0); err != nil {
			return err
		}
		values.Title, values.SourceFile = source.Title, source.Name
	}

	out := OutputPath(dst, values, &cfg, log)
	log.Info("Processing starting", zap.String("destination", out), zap.Stringer("format", cfg.Format))
	defer func(start time.Time) {
		if err == nil {
			log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
		}
	}(time.Now())

	data, err := Render(ed, cfg.Format)
	if err != nil {
		return err
	}
	env.Rpt.StoreData("result/"+filepath.Base(out), data)
	return writeFile(out, data, env.Overwrite)
}

func loadRevision(ctx context.Context, env *state.LocalEnv, id string, log *zap.Logger) (*persist.Revision, error) {
	client, err := persist.NewClient(env.Cfg.Server.URL, id, env.Cfg.Autosave.RequestTimeout, log)
	if err != nil {
		return nil, err
	}
	client.SetToken(string(env.Cfg.Server.Token))
	rev, err := client.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load document %s: %w", id, err)
	}
	return rev, nil
}

func writeFile(path string, data []byte, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return fmt.Errorf("output file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("unable to write output file: %w", err)
	}
	return nil
}

func blockCount(ed *editor.Editor) (n int) {
	ed.View(func(doc *model.Document, _ *cursor.Selection) { n = len(doc.Blocks()) })
	return n
}
