package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"composer/autosave"
	"composer/editor"
	"composer/persist"
	"composer/picker"
	"composer/state"
)

// Run is the "watch" command: edits made to a local markup file are saved to
// the document on the server until program is interrupted.
func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	env := state.EnvFromContext(ctx)
	log := env.Log.Named("watch")
	cfg := env.Cfg

	path := cmd.Args().Get(0)
	if len(path) == 0 {
		return errors.New("no file to watch has been specified")
	}
	if path, err = filepath.Abs(path); err != nil {
		return err
	}

	id := cmd.String("document")
	if id == "" {
		id = cfg.Server.Document
	}
	fresh := id == ""
	if fresh {
		if id, err = persist.NewID(); err != nil {
			return err
		}
		log.Info("Starting new document", zap.String("document", id))
	} else if err := persist.ValidateID(id); err != nil {
		return err
	}

	client, err := persist.NewClient(cfg.Server.URL, id, cfg.Autosave.RequestTimeout, log)
	if err != nil {
		return err
	}
	client.SetToken(string(cfg.Server.Token))

	panel, err := openPanel(env, log)
	if err != nil {
		return err
	}

	ed := editor.New(env.EditorOptions(), client, panel, nil, log)
	defer ed.Close()

	if !fresh {
		rev, err := client.Load(ctx)
		if err != nil {
			return fmt.Errorf("unable to load document %s: %w", id, err)
		}
		if err := ed.LoadRevision(rev); err != nil {
			return err
		}
	}

	s := New(path, ed, env.Rpt, log)
	s.Force = cmd.Bool("force")
	if _, err := os.Stat(path); err == nil {
		if _, err := s.Apply(); err != nil {
			return err
		}
	} else if err := s.Publish(); err != nil {
		return err
	}

	err = s.Watch(ctx)

	// flush whatever is left, program context is already canceled here
	flush, cancel := context.WithTimeout(context.Background(), cfg.Autosave.RequestTimeout)
	defer cancel()
	if ed.Autosave().Status() == autosave.StatusUnsaved {
		if _, conflict := ed.Autosave().Conflict(); !conflict {
			err = multierr.Append(err, ed.Autosave().SaveNow(flush))
		}
	}
	log.Info("Session ended", zap.String("document", id), zap.Int64("version", ed.Autosave().Version()),
		zap.String("status", string(ed.Autosave().Status())))
	return err
}

func openPanel(env *state.LocalEnv, log *zap.Logger) (*picker.Panel, error) {
	catalog, err := picker.LoadCatalog(env.Cfg.Picker.Catalog)
	if err != nil {
		return nil, err
	}
	scope, err := picker.ParseScope(env.Cfg.Picker.Scope)
	if err != nil {
		return nil, err
	}
	panel := picker.NewPanel(catalog, nil, env.Cfg.Picker.ThumbnailURL, env.Cfg.Picker.InspectURL, log)
	panel.SetScope(scope)
	return panel, nil
}
