package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jywlabs/coursewright/internal/agent"
	"github.com/jywlabs/coursewright/internal/checkpoint"
	"github.com/jywlabs/coursewright/internal/config"
	"github.com/jywlabs/coursewright/internal/display"
	"github.com/jywlabs/coursewright/internal/gate"
	"github.com/jywlabs/coursewright/internal/llm"
	"github.com/jywlabs/coursewright/internal/logging"
	"github.com/jywlabs/coursewright/internal/output"
	"github.com/jywlabs/coursewright/internal/retry"
	"github.com/jywlabs/coursewright/internal/search"
	"github.com/jywlabs/coursewright/internal/template"
	"github.com/jywlabs/coursewright/internal/tokens"
	"github.com/jywlabs/coursewright/internal/workflow"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitAborted     = 1
	ExitStageFailed = 2
	ExitConfig      = 3
)

// Root command flags
var (
	outputPath     string
	configDir      string
	modelFlag      string
	providerFlag   string
	maxRevisions   int
	gateResearch   bool
	gateReview     bool
	invalidateFlag string
	checkpointPath string
	resumeFlag     bool
	logLevelFlag   string
	writeConfig    bool
)

var rootCmd = &cobra.Command{
	Use:   "coursewright",
	Short: "Coursewright - write a course with three AI personas and you in the loop",
	Long: `Coursewright writes a complete course from a topic, an audience and a
list of requirements. Three personas do the work and you approve every step:

  小美 (researcher)  researches the topic and suggests directions
  小青 (author)      drafts the outline, then every chapter in order
  小尹 (reviewer)    audits the finished course

Each artifact is shown for [a]ccept / [r]evise / [q]uit. Accepted work is
checkpointed, so an interrupted session continues with --resume.

Environment:
  DASHSCOPE_API_KEY   model credential (required for the dashscope provider)
  OPENAI_API_KEY      model credential (required for the openai provider)
  SERPER_API_KEY      enables web search for the researcher (optional)
  MODEL_NAME          model override (default qwen-plus)
  LOG_LEVEL           debug, info, warn or error (default warn)

Examples:
  coursewright                               # Interactive session
  coursewright -o raft-course.txt            # Also write the course to a file
  coursewright --max-revisions 3 --gate-research
  coursewright --gate-review                 # Approve the review report yourself
  coursewright --resume                      # Continue the last session
  coursewright --write-config                # Write editable persona and task files`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(versionText())

	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Also write the final course to this file")
	rootCmd.Flags().StringVar(&configDir, "config-dir", template.Dir, "Directory with config.yaml, course_agents.yaml and course_tasks.yaml")
	rootCmd.Flags().StringVar(&modelFlag, "model", "", "Model name (overrides MODEL_NAME and config.yaml)")
	rootCmd.Flags().StringVar(&providerFlag, "provider", "", "Model provider (dashscope, openai)")
	rootCmd.Flags().IntVar(&maxRevisions, "max-revisions", 5, "Revision cap per stage")
	rootCmd.Flags().BoolVar(&gateResearch, "gate-research", false, "Ask for approval of the research brief")
	rootCmd.Flags().BoolVar(&gateReview, "gate-review", false, "Ask for approval of the review report before finishing")
	rootCmd.Flags().StringVar(&invalidateFlag, "invalidate", string(config.InvalidateAll), "Later chapters discarded by a chapter revise (all, objective)")
	rootCmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "Session checkpoint file (default <config-dir>/session.json, \"\" disables)")
	rootCmd.Flags().BoolVar(&resumeFlag, "resume", false, "Resume the session in the checkpoint file")
	rootCmd.Flags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&writeConfig, "write-config", false, "Write the default persona, task and settings files to --config-dir and exit")
}

// Execute runs the root command and exits with the session's exit code.
func Execute() {
	err := rootCmd.Execute()
	if err != nil && !isReported(err) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}

// runOptions is everything one session needs from the command line and the
// process environment.
type runOptions struct {
	ConfigDir      string
	OutputPath     string
	CheckpointPath string
	Resume         bool
	Overrides      config.Overrides
	Lookup         func(string) (string, bool)
	Stdin          io.Reader
	Stdout         io.Writer
	Stderr         io.Writer
}

func runRoot(cmd *cobra.Command, args []string) error {
	if writeConfig {
		return writeDefaults(configDir, os.Stdout)
	}

	opts := runOptions{
		ConfigDir:      configDir,
		OutputPath:     outputPath,
		CheckpointPath: filepath.Join(configDir, template.CheckpointFile),
		Resume:         resumeFlag,
		Stdin:          os.Stdin,
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
	}
	if cmd.Flags().Changed("checkpoint") {
		opts.CheckpointPath = checkpointPath
	}

	// Only flags the user actually set override config.yaml
	flags := cmd.Flags()
	if flags.Changed("provider") {
		opts.Overrides.Provider = &providerFlag
	}
	if flags.Changed("model") {
		opts.Overrides.Model = &modelFlag
	}
	if flags.Changed("max-revisions") {
		opts.Overrides.MaxRevisions = &maxRevisions
	}
	if flags.Changed("gate-research") {
		opts.Overrides.GateResearch = &gateResearch
	}
	if flags.Changed("gate-review") {
		opts.Overrides.GateReview = &gateReview
	}
	if flags.Changed("invalidate") {
		opts.Overrides.Invalidation = &invalidateFlag
	}
	if flags.Changed("log-level") {
		opts.Overrides.LogLevel = &logLevelFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runSession(ctx, opts)
}

// writeDefaults seeds dir with the built-in configuration files.
func writeDefaults(dir string, out io.Writer) error {
	written, err := config.WriteDefaults(dir)
	if err != nil {
		return &config.Error{Field: "config-dir", Msg: "cannot write defaults", Err: err}
	}
	if len(written) == 0 {
		fmt.Fprintf(out, "%s already has every configuration file; nothing written\n", dir)
		return nil
	}
	for _, name := range written {
		fmt.Fprintf(out, "   %s %s\n", display.StyleSuccess.Render("[OK]"), filepath.Join(dir, name))
	}
	return nil
}

// reportedError marks an error already shown to the user.
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func isReported(err error) bool {
	var r *reportedError
	return errors.As(err, &r)
}

// runSession loads configuration, builds the stack and drives one session.
func runSession(ctx context.Context, opts runOptions) error {
	if err := config.LoadEnvFiles("."); err != nil {
		return err
	}
	cfg, err := config.Load(config.Options{Dir: opts.ConfigDir, Lookup: opts.Lookup, Overrides: opts.Overrides})
	if err != nil {
		return err
	}

	logger, err := logging.Setup(opts.Stderr, cfg.LogLevel)
	if err != nil {
		return &config.Error{Field: "log-level", Msg: "invalid", Err: err}
	}
	logger.Debug("configuration loaded", "dir", cfg.Dir, "settings", cfg.Settings.String())

	d := display.NewDisplay(opts.Stderr)

	store := checkpoint.New(opts.CheckpointPath)
	session, err := openSession(store, opts.Resume, logger, d)
	if err != nil {
		return err
	}

	client, err := llm.New(cfg.Provider, llm.Settings{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return &config.Error{Field: "provider", Msg: "cannot create client", Err: err}
	}
	client = llm.WithRetry(client, retry.Config{
		MaxRetries:       cfg.MaxRetries,
		BaseDelay:        cfg.RetryDelay,
		MaxJitterPercent: retry.DefaultMaxJitterPercent,
		Logger:           logger,
		OnRetry: func(delay time.Duration, attempt, max int, _ error) {
			d.ShowRetry(attempt, max, delay)
		},
	})

	tool := search.Degrading(search.FromKey(cfg.SerperAPIKey), logger)
	rt := agent.NewRuntime(client, cfg.Prompts, logger)
	rt.SetCounter(tokens.New(cfg.Model, logger))
	agents := workflow.Agents{
		Researcher: agent.NewResearcher(rt, tool),
		Author:     agent.NewAuthor(rt),
		Reviewer:   agent.NewReviewer(rt),
	}

	term := gate.NewTerminal(opts.Stdin, d)
	controller := workflow.New(workflow.Config{
		MaxRevisions: cfg.MaxRevisions,
		GateResearch: cfg.GateResearch,
		GateReview:   cfg.GateReview,
		Invalidation: cfg.Invalidation,
		Logger:       logger,
		Display:      d,
		Checkpoint:   store,
		Header: display.SessionInfo{
			Provider: cfg.Provider,
			Model:    cfg.Model,
			Search:   tool.Available(),
		},
	}, agents, term, term)

	doc, err := controller.Run(ctx, session)
	if err != nil {
		reportFailure(d, err, store)
		return &reportedError{err: err}
	}

	if err := output.New(opts.Stdout).Document(doc); err != nil {
		return err
	}
	if opts.OutputPath != "" {
		if err := output.WriteFile(opts.OutputPath, doc); err != nil {
			return err
		}
	}
	msg := "Course complete"
	if opts.OutputPath != "" {
		msg = fmt.Sprintf("Course complete, written to %s", opts.OutputPath)
	}
	d.ShowSuccess(msg, len(doc.Chapters))
	return nil
}

// openSession starts a new session or restores the checkpointed one.
func openSession(store *checkpoint.Store, resume bool, logger *slog.Logger, d *display.Display) (*workflow.Session, error) {
	if !resume {
		return workflow.NewSession(), nil
	}
	if !store.Enabled() {
		return nil, &config.Error{Field: "resume", Msg: "needs a checkpoint file, but --checkpoint is empty"}
	}
	dump, err := store.Load()
	if errors.Is(err, checkpoint.ErrNotFound) {
		d.ShowWarning("no checkpoint at %s, starting a new session", store.Path)
		return workflow.NewSession(), nil
	}
	if err != nil {
		return nil, &config.Error{Field: "checkpoint", Msg: "cannot resume", Err: err}
	}
	session, err := workflow.FromDump(dump)
	if err != nil {
		return nil, &config.Error{Field: "checkpoint", Msg: "cannot resume", Err: err}
	}
	logger.Info("resuming session", "session", session.ID, "state", session.State, "next_chapter", session.NextChapter)
	return session, nil
}

// reportFailure shows why the session ended.
func reportFailure(d *display.Display, err error, store *checkpoint.Store) {
	saved := ""
	if store.Enabled() {
		saved = fmt.Sprintf("Accepted work is saved in %s; continue with --resume.", store.Path)
	}
	var se *workflow.StageError
	switch {
	case errors.Is(err, workflow.ErrUserAborted):
		d.ShowWarning("session aborted. %s", saved)
	case errors.Is(err, workflow.ErrRevisionCapExceeded):
		d.ShowError("", "RevisionCapExceeded", err.Error(), saved)
	case errors.As(err, &se):
		d.ShowError(string(se.Stage), workflow.ErrorKind(se.Err), se.Err.Error(), saved)
	default:
		d.ShowError("", "", err.Error(), saved)
	}
}

// exitCode maps a session error to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, config.ErrConfig):
		return ExitConfig
	case errors.Is(err, workflow.ErrUserAborted):
		return ExitAborted
	default:
		return ExitStageFailed
	}
}
