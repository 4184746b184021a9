package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"pkai/internal/assistant"
	"pkai/internal/config"
	"pkai/internal/llm"
	"pkai/internal/logging"
)

const (
	ExitSuccess       = 0
	ExitGenericError  = 1
	ExitConfigInvalid = 2
	ExitProviderQuota = 3
)

const configInvalidPrefix = "CONFIG_INVALID:"

// GlobalFlags holds flags shared across all commands.
type GlobalFlags struct {
	ConfigPath     string
	LogLevel       string
	LogFile        string
	NonInteractive bool
}

// newAssistant builds the assistant for ask and chat. Tests replace it to
// inject a fake model.
var newAssistant = func(cfg config.Config, logger *slog.Logger) (*assistant.Assistant, error) {
	return assistant.New(assistant.Options{Config: cfg, Logger: logger})
}

// NewRootCmd builds the pkai command tree.
func NewRootCmd() *cobra.Command {
	flags := &GlobalFlags{}
	root := &cobra.Command{
		Use:           "pkai",
		Short:         "Personal knowledge assistant with Google Workspace tools",
		Long:          "pkai answers questions with a language model that can search your notes, fetch pages, and create Drive files and Google Tasks.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", config.DefaultConfigFile, "config file path")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&flags.LogFile, "log-file", "", "write logs to a rotated file instead of stderr")
	root.PersistentFlags().BoolVar(&flags.NonInteractive, "non-interactive", false, "disable prompts; fail fast when input is needed")

	root.AddCommand(newAskCmd(flags))
	root.AddCommand(newChatCmd(flags))
	root.AddCommand(newAuthCmd(flags))
	root.AddCommand(newToolsCmd(flags))
	root.AddCommand(newIngestCmd(flags))
	root.AddCommand(newConfigCmd(flags))
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case strings.HasPrefix(err.Error(), configInvalidPrefix):
		return ExitConfigInvalid
	case llm.IsQuotaError(err):
		return ExitProviderQuota
	default:
		return ExitGenericError
	}
}

// Report prints err to w and returns the exit code for it. Quota errors get
// a hint line before the provider's own message.
func Report(w io.Writer, err error) int {
	code := ExitCode(err)
	if code == ExitSuccess {
		return code
	}
	s := newStyles(w, false)
	if code == ExitProviderQuota {
		fmt.Fprintln(w, s.warnPrefix(), "the model provider rejected the request for quota or rate-limit reasons; wait and retry, or switch LLM_PROVIDER")
	}
	fmt.Fprintln(w, s.errPrefix(), err.Error())
	return code
}

func loadConfig(flags *GlobalFlags, skipValidate bool) (config.Config, error) {
	overrides := &config.Overrides{}
	if flags.LogLevel != "" {
		overrides.LogLevel = &flags.LogLevel
	}
	if flags.LogFile != "" {
		overrides.LogFile = &flags.LogFile
	}
	return config.Load(config.Options{
		ConfigPath:   flags.ConfigPath,
		SkipValidate: skipValidate,
		Overrides:    overrides,
	})
}

// newLogger builds the process logger. When stderr belongs to a full-screen
// UI, logs go to a file under the state directory instead.
func newLogger(cfg config.Config, fullScreen bool) (logging.Logger, error) {
	opts := logging.Options{Level: cfg.Log.Level, File: cfg.Log.File, JSON: cfg.Log.JSON}
	if fullScreen && opts.File == "" {
		opts.File = filepath.Join(cfg.Knowledge.StateDir, "pkai.log")
	}
	return logging.New(opts)
}

// openAssistant loads config, logging and the assistant in one step. The
// returned cleanup closes both.
func openAssistant(flags *GlobalFlags, fullScreen bool) (*assistant.Assistant, config.Config, func(), error) {
	cfg, err := loadConfig(flags, false)
	if err != nil {
		return nil, config.Config{}, nil, err
	}
	lg, err := newLogger(cfg, fullScreen)
	if err != nil {
		return nil, config.Config{}, nil, fmt.Errorf("logging: %w", err)
	}
	a, err := newAssistant(cfg, lg.Logger)
	if err != nil {
		_ = lg.Close()
		return nil, config.Config{}, nil, err
	}
	cleanup := func() {
		if err := a.Close(); err != nil && !errors.Is(err, context.Canceled) {
			lg.Logger.Warn("close assistant", "err", err)
		}
		_ = lg.Close()
	}
	return a, cfg, cleanup, nil
}
