package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/adamancini/otaup/internal/config"
	"github.com/adamancini/otaup/internal/history"
	"github.com/adamancini/otaup/internal/hooks"
	"github.com/adamancini/otaup/internal/interactive"
	"github.com/adamancini/otaup/internal/output"
	"github.com/adamancini/otaup/internal/rawhttp"
	"github.com/adamancini/otaup/internal/release"
	"github.com/adamancini/otaup/internal/update"
	"github.com/adamancini/otaup/internal/version"
)

// session is what a command needs once flags and config are resolved.
type session struct {
	cfg    *config.Config
	logger *log.Logger
	out    *output.Writer
	fs     afero.Fs

	// Prompt streams for interactive confirmation.
	in         io.Reader
	prompt     io.Writer
	isTerminal func() bool

	// hookRunner replaces the post-apply command runner when set.
	hookRunner hooks.CommandRunner
}

func newLogger(w io.Writer, opts globalOptions) *log.Logger {
	level := log.InfoLevel
	switch {
	case opts.quiet:
		level = log.ErrorLevel
	case opts.verbose:
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{Prefix: "otaup", Level: level})
}

// sessionFor builds a session writing to the command's streams.
func sessionFor(cmd *cobra.Command) (*session, error) {
	s, err := newSession(cmd.OutOrStdout(), cmd.ErrOrStderr(), globals)
	if err != nil {
		return nil, err
	}
	s.in = cmd.InOrStdin()
	return s, nil
}

func newSession(stdout, stderr io.Writer, opts globalOptions) (*session, error) {
	out, err := newOutputWriter(stdout, opts.outputFormat)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:    cfg,
		logger: newLogger(stderr, opts),
		out:    out,
		fs:     afero.NewOsFs(),

		in:         os.Stdin,
		prompt:     stdout,
		isTerminal: interactive.IsTerminal,
	}
	if cfg.Path != "" {
		s.logger.Debug("Loaded config", "path", cfg.Path)
	}
	return s, nil
}

func newOutputWriter(w io.Writer, format string) (*output.Writer, error) {
	f, err := output.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return output.NewWriter(w, f), nil
}

// loadConfig finds and reads the config file, applies flag overrides and
// validates the result. The file is optional when --repo is given.
func loadConfig(opts globalOptions) (*config.Config, error) {
	var cfg *config.Config

	path, err := config.Find(opts.configPath)
	switch {
	case err == nil:
		if cfg, err = config.Read(path); err != nil {
			return nil, err
		}
	case errors.Is(err, config.ErrNotFound) && opts.repo != "":
		cfg = config.Default()
	case errors.Is(err, config.ErrNotFound):
		return nil, fmt.Errorf("%w; run 'otaup init' or pass --repo", err)
	default:
		return nil, err
	}

	cfg.Apply(config.Overrides{
		Repository: opts.repo,
		Module:     opts.module,
		MainDir:    opts.mainDir,
	})

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *session) httpClient() *rawhttp.Client {
	return rawhttp.NewClient(
		rawhttp.WithTimeout(s.cfg.Timeout),
		rawhttp.WithMaxBodyBytes(s.cfg.MaxBodyBytes),
		rawhttp.WithUserAgent(s.cfg.UserAgent),
	)
}

func (s *session) releaseClient() *release.Client {
	return release.NewClient(s.cfg.Repository,
		release.WithToken(s.cfg.Token),
		release.WithHTTPClient(s.httpClient()),
	)
}

func (s *session) updater() (*update.Updater, error) {
	policy, err := version.ByName(s.cfg.Comparator)
	if err != nil {
		return nil, err
	}

	return update.New(s.releaseClient(), update.NewLayout(s.cfg.Module, s.cfg.MainDir),
		update.WithFs(s.fs),
		update.WithLogger(s.logger),
		update.WithPolicy(policy),
	), nil
}

func (s *session) journal() *history.Journal {
	return history.NewJournal(s.fs, s.cfg.HistoryDir(), buildInfo.Version)
}

// record journals one update step and trims the journal to history.keep.
// A keep of 0 disables the journal. Journal failures are logged only.
func (s *session) record(command string, result *update.Result, stepErr error) {
	keep := s.cfg.History.Keep
	if keep == 0 {
		return
	}

	j := s.journal()
	if _, err := j.Record(command, result, stepErr); err != nil {
		s.logger.Warn("Failed to record history", "err", err)
		return
	}
	if pruned, err := j.Prune(keep); err != nil {
		s.logger.Warn("Failed to prune history", "err", err)
	} else if len(pruned.Deleted) > 0 {
		s.logger.Debug("Pruned history", "deleted", len(pruned.Deleted))
	}
}

// runPostApply runs the configured hooks after an update was promoted. It
// returns nil when nothing ran.
func (s *session) runPostApply(applied *update.Result, layout update.Layout) *hooks.Result {
	if applied == nil || applied.Action != update.ActionApplied || len(s.cfg.Hooks.PostApply) == 0 {
		return nil
	}

	opts := []hooks.Option{hooks.WithLogger(s.logger)}
	if s.hookRunner != nil {
		opts = append(opts, hooks.WithRunner(s.hookRunner))
	}

	result := hooks.NewExecutor(opts...).Run(s.cfg.Hooks.PostApply, hooks.Event{
		Version:         applied.Version,
		PreviousVersion: applied.InstalledVersion,
		LivePath:        layout.LivePath(),
	})
	if err := result.Err(); err != nil {
		s.record("post-apply", nil, err)
	}
	return result
}
