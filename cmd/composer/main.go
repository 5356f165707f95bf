package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"composer/config"
	"composer/export"
	"composer/misc"
	"composer/session"
	"composer/state"
)

// initializeAppContext prepares application context before command execution but
// after command line has been parsed
func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var err error

	if cmd.NArg() == 0 {
		// nothing to do, just return
		return ctx, nil
	}

	env := state.EnvFromContext(ctx)

	configFile := cmd.String("config")
	if env.Cfg, err = config.LoadConfiguration(configFile); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if cmd.Bool("debug") {
		if env.Rpt, err = env.Cfg.Reporting.Prepare(); err != nil {
			return ctx, fmt.Errorf("unable to prepare debug reporter: %w", err)
		}
		// secrets are masked by Dump
		if data, err := config.Dump(env.Cfg); err == nil {
			name := "config/actual.yaml"
			if len(configFile) > 0 {
				name = fmt.Sprintf("config/%s", filepath.Base(configFile))
			}
			env.Rpt.StoreData(name, data)
		}
	}
	if env.Log, err = env.Cfg.Logging.Prepare(env.Rpt); err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}
	env.RedirectStdLog()

	env.Log.Debug("Program started", zap.Strings("args", os.Args), zap.String("ver", misc.GetVersion()), zap.String("runtime", runtime.Version()), zap.String("hash", misc.GetGitHash()))

	if env.Rpt != nil {
		env.Log.Info("Creating debug report", zap.String("location", env.Rpt.Name()))
	}
	if len(configFile) == 0 {
		env.Log.Info("Using defaults (no configuration file)")
	}
	return ctx, nil
}

func destroyAppContext(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)

	if env.Log != nil {
		env.Log.Debug("Program ended", zap.Duration("elapsed", env.Uptime()), zap.Strings("parsed args", cmd.Args().Slice()))
	}

	// close logging
	env.RestoreStdLog()

	// log is synced now and could be put into report, errors must be
	// reported directly to stderr from now on
	if env.Rpt != nil {
		if er := env.Rpt.Close(); er != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close debug report: %w", er))
		}
	}
	// reporting is closed now - remove empty panic file if any
	if env.Cfg != nil && len(env.Cfg.Logging.FileLogger.Destination) > 0 {
		debug.SetCrashOutput(nil, debug.CrashOptions{})
		fname := env.Cfg.Logging.PanicLogName()
		if fi, er := os.Stat(fname); er == nil && fi.Size() == 0 {
			if er := os.Remove(fname); er != nil {
				err = multierr.Append(err, fmt.Errorf("unable to remove empty panic log file '%s': %w", fname, er))
			}
		}
	}
	return
}

// Errors from subcommands are regular errors, cli.Exit() is not used.
var errWasHandled bool

// this is called before appContext is destroyed, so we have a chance to
// properly log any error from subcommand
func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {
	env := state.EnvFromContext(ctx)
	if env.Log != nil {
		env.Log.Error("Program ended with error", zap.Error(err))
		errWasHandled = true
	}
}

func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	// error is reported either by exitErrHandler or on exit directly to stderr
	return err
}

func subcommandNotFoundHandler(ctx context.Context, _ *cli.Command, name string) {
	if log := state.EnvFromContext(ctx).Log; log != nil {
		log.Warn("Unknown command, nothing to do", zap.String("command", name))
	}
}

// beforeFileCommand picks up flags shared by commands working with files.
func beforeFileCommand(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	env := state.EnvFromContext(ctx)
	env.Overwrite = cmd.Bool("overwrite")
	env.Encoding = cmd.String("encoding")
	if env.Encoding == "" && env.Cfg != nil {
		env.Encoding = env.Cfg.Export.Encoding
	}
	return ctx, nil
}

var fileFlags = []cli.Flag{
	&cli.BoolFlag{Name: "overwrite", Aliases: []string{"ow"}, Usage: "continue even if destination exists, overwrite files"},
	&cli.StringFlag{Name: "encoding", Usage: "character set `NAME` of HTML source (see IANA.org for character set names), detected when absent"},
}

func main() {
	// allow graceful shutdown on interrupt, watch and serve run until then
	ctx, stop := signal.NotifyContext(state.ContextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	app := &cli.Command{
		Name:            misc.GetAppName(),
		Usage:           "composite document editing engine: normalization, image layout and autosave",
		Version:         misc.GetVersion() + " (" + runtime.Version() + ") : " + misc.GetGitHash(),
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		OnUsageError:    usageErrorHandler,
		ExitErrHandler:  exitErrHandler,
		CommandNotFound: subcommandNotFoundHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, DefaultText: "", Usage: "load configuration from `FILE` (YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "changes program behavior to help troubleshooting, produces report archive"},
		},
		Commands: []*cli.Command{
			{
				Name:         "normalize",
				Usage:        "Rewrites markup file into canonical document form",
				OnUsageError: usageErrorHandler,
				Before:       beforeFileCommand,
				Action:       export.Normalize,
				Flags:        fileFlags,
				ArgsUsage:    "SOURCE [DESTINATION]",
				CustomHelpTemplate: fmt.Sprintf(`%s
SOURCE:
    path to HTML fragment or XHTML file (.xhtml extension)

DESTINATION:
    file to write normalized markup to, XHTML when it has .xhtml extension,
    if absent - STDOUT
`, cli.CommandHelpTemplate),
			},
			{
				Name:         "export",
				Usage:        "Exports document into file named by configured template",
				OnUsageError: usageErrorHandler,
				Before:       beforeFileCommand,
				Action:       export.Run,
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "to", Usage: "export `FORMAT` (html, xhtml), overrides configuration"},
					&cli.StringFlag{Name: "document", Usage: "export latest revision of document `ID` from the server instead of SOURCE"},
				}, fileFlags...),
				ArgsUsage: "[SOURCE] [DESTINATION]",
				CustomHelpTemplate: fmt.Sprintf(`%s
SOURCE:
    path to HTML fragment or XHTML file, ignored when --document is used

DESTINATION:
    always a directory, file name and extension are derived from configuration,
    if absent - current working directory
`, cli.CommandHelpTemplate),
			},
			{
				Name:         "serve",
				Usage:        "Runs document revision endpoint",
				OnUsageError: usageErrorHandler,
				Action:       serve,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "listen", Usage: "`ADDRESS` to listen on, overrides configuration"},
				},
			},
			{
				Name:         "watch",
				Usage:        "Saves changes of local markup file to the server as they happen",
				OnUsageError: usageErrorHandler,
				Action:       session.Run,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "document", Usage: "document `ID` on the server, new document is created when absent"},
					&cli.BoolFlag{Name: "force", Usage: "on conflict overwrite changes made elsewhere"},
				},
				ArgsUsage: "FILE",
			},
			{
				Name:  "catalog",
				Usage: "Manages image catalog used by picker",
				Commands: []*cli.Command{
					{
						Name:         "import",
						Usage:        "Adds image files to the catalog",
						OnUsageError: usageErrorHandler,
						Action:       catalogImport,
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "caption", Usage: "image `CAPTION`, derived from file name when absent"},
							&cli.StringFlag{Name: "prefix", Usage: "import only zip archive entries under `PATH`"},
						},
						ArgsUsage: "IMAGE|ARCHIVE.zip...",
					},
					{
						Name:         "list",
						Usage:        "Lists catalog images as picker presents them",
						OnUsageError: usageErrorHandler,
						Action:       catalogList,
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "scope", Usage: "`SCOPE` filter (all, used, unused), overrides configuration"},
							&cli.StringFlag{Name: "usage", Usage: "count image usage in markup `FILE`"},
						},
					},
				},
			},
			{
				Name:  "dumpconfig",
				Usage: "Dumps either default or actual configuration (YAML)",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "default", Usage: "output default embedded configuration"},
				},
				OnUsageError: usageErrorHandler,
				Action:       outputConfiguration,
				ArgsUsage:    "DESTINATION",
				CustomHelpTemplate: fmt.Sprintf(`%s

DESTINATION:
    file name to write configuration to, if absent - STDOUT

Produces file with actual "active" configuration values which is composition of
default values and values specified in configuration file. To see default
configuration embedded into the program use --default flag.
`, cli.CommandHelpTemplate),
			},
		},
	}

	var err error
	// NOTE: os.Exit is called at the end of main to set exit code, make sure
	// there are no other deferred functions after that
	defer func() {
		stop()
		if err != nil {
			// log may be either not set yet (argument parsing) or already closed
			if !errWasHandled {
				fmt.Fprintf(os.Stderr, "Program ended with error: %v\n", err)
			}
			os.Exit(1)
		}
	}()
	err = app.Run(ctx, os.Args)
}

func outputConfiguration(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() > 1 {
		env.Log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	fname := cmd.Args().Get(0)

	var (
		err  error
		data []byte
		kind string
	)

	out := os.Stdout
	if len(fname) > 0 {
		out, err = os.Create(fname)
		if err != nil {
			return fmt.Errorf("unable to create destination file '%s': %w", fname, err)
		}
		defer out.Close()
	}

	if cmd.Bool("default") {
		kind = "default"
		data, err = config.Prepare()
	} else {
		kind = "actual"
		data, err = config.Dump(env.Cfg)
	}
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}

	if len(fname) == 0 {
		fname = "STDOUT"
	}
	env.Log.Info("Outputting configuration", zap.String("state", kind), zap.String("file", fname))

	if _, err = out.Write(data); err != nil {
		return fmt.Errorf("unable to write configuration: %w", err)
	}
	return nil
}
