package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/schaermu/ijsync/internal/actions"
	"github.com/schaermu/ijsync/internal/config"
	"github.com/schaermu/ijsync/internal/fetch"
	"github.com/schaermu/ijsync/internal/files"
	"github.com/schaermu/ijsync/internal/git"
	"github.com/schaermu/ijsync/internal/github"
	"github.com/schaermu/ijsync/internal/redact"
	"github.com/schaermu/ijsync/internal/release"
	"github.com/schaermu/ijsync/internal/upgrade"
	"github.com/schaermu/ijsync/internal/verifier"
	ver "github.com/schaermu/ijsync/internal/version"
	"github.com/schaermu/ijsync/internal/webhook"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	dryRun    bool

	// Verify flags
	verifierVersion string
	pluginLocation  string
	ideVersions     []string

	// redactor scrubs every credential loaded at runtime from logs and errors
	redactor = redact.New()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", redactor.String(err.Error()))
		os.Exit(exitCode(err))
	}
}

// exitCode maps a failed verification to 2 and every other failure to 1.
func exitCode(err error) int {
	if errors.Is(err, verifier.ErrVerificationFailed) {
		return 2
	}
	return 1
}

var rootCmd = &cobra.Command{
	Use:   "ijsync",
	Short: "Keep an IntelliJ plugin in step with new platform releases",
	Long: `ijsync upgrades an IntelliJ Platform plugin repository to the newest
platform release: it bumps the platform and plugin versions, records the
upgrade in the changelog, updates the IDE versions in CI workflows and opens
a pull request with the result.

It also runs the IntelliJ Plugin Verifier against a list of IDE builds, and
can run as a webhook daemon that upgrades whenever GitHub notifies it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade the repository to the latest platform release",
	Long: `Upgrade resolves the latest platform release, rewrites the managed files
and, when anything changed, commits them to an upgrade branch and opens a
pull request. Existing branches and pull requests are left untouched.`,
	Args: cobra.NoArgs,
	RunE: runUpgrade,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run the IntelliJ Plugin Verifier against a set of IDE builds",
	Long: `Verify downloads the plugin verifier and each requested IDE build, runs
the verifier on the built plugin and fails when compatibility problems are
reported. Inside GitHub Actions the action inputs override the configuration.

Exit status is 2 when the plugin failed verification and 1 on other errors.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

var channelCmd = &cobra.Command{
	Use:   "channel <plugin-version>",
	Short: "Print the release channel for a plugin version",
	Args:  cobra.ExactArgs(1),
	RunE:  runChannel,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Serve starts a long-running HTTP server that listens for GitHub webhook events
and runs an upgrade when the repository is pushed to or a dispatch event
arrives. Each run starts from a fresh checkout of the base branch.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "ijsync %s\n", version)
		_, _ = fmt.Fprintf(out, "  commit: %s\n", commit)
		_, _ = fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/ijsync/config.yaml, optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	upgradeCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be changed without committing or opening a pull request")

	verifyCmd.Flags().StringVar(&verifierVersion, "verifier-version", "", "plugin verifier version or LATEST")
	verifyCmd.Flags().StringVar(&pluginLocation, "plugin-location", "", "glob matching the built plugin archive")
	verifyCmd.Flags().StringArrayVar(&ideVersions, "ide-version", nil, "IDE to verify against as <edition>:<version> (repeatable)")

	rootCmd.AddCommand(upgradeCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(channelCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runUpgrade(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()
	rt := actions.FromEnv()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	token, err := loadToken(cfg, rt)
	if err != nil {
		if !dryRun {
			return err
		}
		logger.Warn("no API token available, continuing dry-run unauthenticated", "error", err)
	}
	if !dryRun {
		if err := cfg.ValidatePublish(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	engine, err := newEngine(cfg, token, logger, dryRun)
	if err != nil {
		return err
	}

	res, err := engine.Run(ctx)
	if err != nil {
		err = redactor.Error(err)
		logger.Error("upgrade failed", "state", res.State, "error", err)
		rt.Fail(err)
		return err
	}

	rt.SetOutput(actions.OutputUpgradeState, string(res.State))
	rt.SetOutput(actions.OutputPlatformVer, res.Version.String())
	rt.SetOutput(actions.OutputBranch, res.Branch)
	rt.SetOutput(actions.OutputPullRequestURL, res.PullRequestURL)

	logger.Info("upgrade finished",
		"state", res.State,
		"version", res.Version.String(),
		"branch", res.Branch,
		"pull_request", res.PullRequestURL,
		"files", len(res.Files))
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()
	rt := actions.FromEnv()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyVerifyOverrides(&cfg.Verify, rt)

	ides, err := verifier.ParseIDEs(strings.Join(cfg.Verify.IDEVersions, "\n"))
	if err != nil {
		return err
	}

	workspace := rt.Workspace()
	if workspace == "" {
		workspace = cfg.Repo.Dir
	}

	httpClient := fetch.NewClient(nil, cfg.HTTP.Timeout, logger)
	resolver := release.NewResolver(httpClient, cfg.Release.MetadataURL, cfg.Verify.VerifierReleaseURL, logger)

	v, err := verifier.New(verifier.Options{
		VerifierVersion:  cfg.Verify.VerifierVersion,
		PluginLocation:   cfg.Verify.PluginLocation,
		Workspace:        workspace,
		IDEs:             ides,
		WorkDir:          cfg.Verify.WorkDir,
		OutputLog:        cfg.Verify.OutputLog,
		IDERepositoryURL: cfg.Verify.IDERepositoryURL,
		VerifierMavenURL: cfg.Verify.VerifierMavenURL,
		JavaBinary:       cfg.Verify.JavaBinary,
	}, httpClient, resolver, verifier.NewExecRunner(), cmd.OutOrStdout(), logger)
	if err != nil {
		return err
	}

	report, err := v.WithGrouper(rt).Run(ctx)
	if err == nil || errors.Is(err, verifier.ErrVerificationFailed) {
		rt.SetOutput(actions.OutputLogFilename, report.LogFile)
	}
	if err != nil {
		logger.Error("verification failed", "log", report.LogFile, "problems", len(report.Problems), "error", err)
		rt.Fail(err)
		return err
	}
	return nil
}

// applyVerifyOverrides layers action inputs and then command line flags over
// the verify configuration.
func applyVerifyOverrides(cfg *config.VerifyConfig, rt *actions.Runtime) {
	rt.ApplyVerifyInputs(cfg)
	if verifierVersion != "" {
		cfg.VerifierVersion = verifierVersion
	}
	if pluginLocation != "" {
		cfg.PluginLocation = pluginLocation
	}
	if len(ideVersions) > 0 {
		cfg.IDEVersions = ideVersions
	}
}

func runChannel(cmd *cobra.Command, args []string) error {
	v, err := ver.Parse(args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), ver.ReleaseChannel(v))
	return err
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	token, err := loadToken(cfg, actions.FromEnv())
	if err != nil {
		return err
	}

	engine, err := newEngine(cfg, token, logger, false)
	if err != nil {
		return err
	}
	engine = engine.WithFreshCheckout()

	server, err := webhook.NewServer(cfg, engine, logger)
	if err != nil {
		return fmt.Errorf("failed to create webhook server: %w", err)
	}

	logger.Info("starting webhook server", "listen_addr", cfg.Serve.ListenAddr)
	return server.Start(ctx)
}

// newEngine wires the upgrade workflow to its production collaborators.
func newEngine(cfg *config.Config, token string, logger *slog.Logger, dryRun bool) (*upgrade.Engine, error) {
	httpClient := fetch.NewClient(nil, cfg.HTTP.Timeout, logger)
	resolver := release.NewResolver(httpClient, cfg.Release.MetadataURL, cfg.Verify.VerifierReleaseURL, logger)
	gitClient := git.NewShellClient(cfg.Repo.Dir, token)
	synchronizer := files.NewSynchronizer(files.Options{
		Dir:            cfg.Repo.Dir,
		PropertiesGlob: cfg.Files.Properties,
		ChangelogGlob:  cfg.Files.Changelog,
		WorkflowsGlob:  cfg.Files.Workflows,
		VerifierAction: cfg.Files.VerifierAction,
		Editions:       cfg.Files.Editions,
		PlatformName:   cfg.Release.PlatformName,
		DryRun:         dryRun,
	}, gitClient, logger)
	hosting, err := github.NewAPIClient(httpClient, cfg.GitHub.APIURL, cfg.Repo.Owner, cfg.Repo.Name, token)
	if err != nil {
		return nil, err
	}

	return upgrade.NewEngine(cfg, resolver, synchronizer, gitClient, hosting, logger, dryRun), nil
}

// loadToken reads the API token and registers it for redaction and masking
// before anything can log it.
func loadToken(cfg *config.Config, rt *actions.Runtime) (string, error) {
	token, err := cfg.Token()
	if err != nil {
		return "", err
	}
	redactor.Add(token)
	rt.Mask(token)
	return token, nil
}

func setupLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// stdout is reserved for command output (verifier log, channel name)
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: redactor.ReplaceAttr}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// loadConfig reads the configuration. The default path is optional so the
// tool runs from flags and environment alone inside CI.
func loadConfig(logger *slog.Logger) (*config.Config, error) {
	configPath := cfgFile
	allowMissing := false
	if configPath == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "ijsync", "config.yaml")
		allowMissing = true
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath, allowMissing)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"repo", cfg.Repo.Owner+"/"+cfg.Repo.Name,
		"dir", cfg.Repo.Dir,
		"base_branch", cfg.Repo.BaseBranch,
		"branch_prefix", cfg.Repo.BranchPrefix)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
