// Package verifier downloads the plugin verifier and the requested IDE builds,
// runs the verification and scans its log for compatibility problems.
package verifier

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/mitchellh/go-homedir"

	"github.com/schaermu/ijsync/internal/release"
)

// LatestVersion selects the newest published verifier release.
const LatestVersion = "LATEST"

// LogFileName is the verification log written below the work directory.
const LogFileName = "verification_result.log"

// ErrVerificationFailed is returned when the verifier reports compatibility problems.
var ErrVerificationFailed = errors.New("plugin failed verification check")

var problemPattern = regexp.MustCompile(`^Plugin (.*) against .*: .* compatibility problems?$`)

var banner = []string{
	"==============================================",
	"==============================================",
	"===                                        ===",
	"===    PLUGIN FAILED VERIFICATION CHECK    ===",
	"===                                        ===",
	"==============================================",
	"==============================================",
}

// Downloader fetches a URL into a local file
type Downloader interface {
	Download(ctx context.Context, url, dest string) error
}

// ReleaseResolver looks up the newest verifier release
type ReleaseResolver interface {
	LatestVerifier(ctx context.Context) (release.VerifierRelease, error)
}

// Grouper folds related output together, e.g. in a CI log.
type Grouper interface {
	Group(title string)
	EndGroup()
}

// Options configures a verification run
type Options struct {
	// VerifierVersion is a release version or LatestVersion.
	VerifierVersion string
	// PluginLocation is a glob, relative to Workspace, that must match one file.
	PluginLocation string
	Workspace      string
	IDEs           []IDE
	// WorkDir holds the verifier jar, the IDEs and the log. Defaults to $HOME.
	WorkDir string
	// OutputLog defaults to WorkDir/verification_result.log.
	OutputLog        string
	IDERepositoryURL string
	VerifierMavenURL string
	JavaBinary       string
}

// Report describes a completed verification run
type Report struct {
	Jar      string
	Plugin   string
	IDEDirs  []string
	LogFile  string
	Problems []string
}

// Verifier runs the plugin verifier
type Verifier struct {
	opts       Options
	downloader Downloader
	resolver   ReleaseResolver
	runner     Runner
	grouper    Grouper
	out        io.Writer
	logger     *slog.Logger
}

// New creates a verifier. Tool output and the failure banner are written to out.
func New(opts Options, downloader Downloader, resolver ReleaseResolver, runner Runner, out io.Writer, logger *slog.Logger) (*Verifier, error) {
	if opts.WorkDir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine work directory: %w", err)
		}
		opts.WorkDir = home
	}
	if opts.OutputLog == "" {
		opts.OutputLog = filepath.Join(opts.WorkDir, LogFileName)
	}
	if opts.VerifierVersion == "" {
		opts.VerifierVersion = LatestVersion
	}
	if opts.JavaBinary == "" {
		opts.JavaBinary = "java"
	}
	if len(opts.IDEs) == 0 {
		return nil, fmt.Errorf("at least one IDE version is required")
	}
	return &Verifier{
		opts:       opts,
		downloader: downloader,
		resolver:   resolver,
		runner:     runner,
		grouper:    noopGrouper{},
		out:        out,
		logger:     logger,
	}, nil
}

// WithGrouper folds per-IDE output into groups
func (v *Verifier) WithGrouper(g Grouper) *Verifier {
	if g != nil {
		v.grouper = g
	}
	return v
}

// Run performs the verification. It returns ErrVerificationFailed, together
// with the report, when the log lists compatibility problems.
func (v *Verifier) Run(ctx context.Context) (Report, error) {
	report := Report{LogFile: v.opts.OutputLog}

	v.grouper.Group("Input parameters")
	v.logger.Info("verifier inputs",
		"verifier_version", v.opts.VerifierVersion,
		"plugin_location", v.opts.PluginLocation,
		"ide_versions", len(v.opts.IDEs))
	for _, ide := range v.opts.IDEs {
		v.logger.Debug("ide version", "ide", ide.String())
	}
	v.grouper.EndGroup()

	plugin, err := v.locatePlugin()
	if err != nil {
		return report, err
	}
	report.Plugin = plugin

	jar, err := v.fetchVerifier(ctx)
	if err != nil {
		return report, err
	}
	report.Jar = jar

	v.logger.Info("processing IDE versions", "count", len(v.opts.IDEs))
	for _, ide := range v.opts.IDEs {
		dir, err := v.prepareIDE(ctx, ide)
		if err != nil {
			return report, err
		}
		report.IDEDirs = append(report.IDEDirs, dir)
	}

	if err := v.check(ctx, report); err != nil {
		return report, err
	}

	problems, err := scanLog(report.LogFile)
	if err != nil {
		return report, err
	}
	report.Problems = problems
	if len(problems) > 0 {
		v.printBanner()
		return report, fmt.Errorf("%w: %d problem report(s) in %s", ErrVerificationFailed, len(problems), report.LogFile)
	}

	v.logger.Info("plugin verified", "plugin", report.Plugin, "ides", len(report.IDEDirs))
	return report, nil
}

// ResolveJar returns the jar file name and download URL for the configured
// verifier version.
func (v *Verifier) ResolveJar(ctx context.Context) (name, url string, err error) {
	ver := strings.TrimSpace(v.opts.VerifierVersion)
	if strings.EqualFold(ver, LatestVersion) {
		v.logger.Debug("resolving latest verifier release")
		rel, err := v.resolver.LatestVerifier(ctx)
		if err != nil {
			return "", "", err
		}
		v.logger.Info("resolved latest verifier", "version", rel.Version)
		return rel.AssetName, rel.DownloadURL, nil
	}

	if strings.ContainsAny(ver, `/\`) {
		return "", "", fmt.Errorf("invalid verifier version %q", ver)
	}
	name = fmt.Sprintf("verifier-cli-%s-all.jar", ver)
	url = fmt.Sprintf("%s/%s/%s", strings.TrimRight(v.opts.VerifierMavenURL, "/"), ver, name)
	return name, url, nil
}

func (v *Verifier) fetchVerifier(ctx context.Context) (string, error) {
	name, url, err := v.ResolveJar(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve verifier: %w", err)
	}
	jar := filepath.Join(v.opts.WorkDir, filepath.Base(name))
	v.logger.Info("downloading plugin verifier", "url", url, "dest", jar)
	if err := v.downloader.Download(ctx, url, jar); err != nil {
		return "", fmt.Errorf("failed to download verifier: %w", err)
	}
	return jar, nil
}

func (v *Verifier) locatePlugin() (string, error) {
	pattern := v.opts.PluginLocation
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(v.opts.Workspace, pattern)
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid plugin location %q: %w", v.opts.PluginLocation, err)
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no plugin matches %q", v.opts.PluginLocation)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("plugin location %q is ambiguous: %v", v.opts.PluginLocation, matches)
	}
}

// prepareIDE downloads and unpacks one IDE build, removing the archive afterwards.
func (v *Verifier) prepareIDE(ctx context.Context, ide IDE) (string, error) {
	v.grouper.Group("Processing " + ide.String())
	defer v.grouper.EndGroup()

	url := ide.DownloadURL(v.opts.IDERepositoryURL)
	archive := filepath.Join(v.opts.WorkDir, ide.Name()+".zip")
	dest := filepath.Join(v.opts.WorkDir, "ides", ide.Name())
	v.logger.Debug("ide build",
		"ide", ide.Edition,
		"version", ide.Version,
		"dir", ide.Dir(),
		"release_type", ide.ReleaseType(),
		"url", url)

	v.logger.Info("downloading IDE", "ide", ide.String(), "url", url)
	if err := v.downloader.Download(ctx, url, archive); err != nil {
		return "", fmt.Errorf("failed to download %s: %w", ide, err)
	}

	v.logger.Info("extracting IDE", "archive", archive, "dest", dest)
	n, err := extractZip(archive, dest)
	if err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", ide, err)
	}
	v.logger.Debug("extracted IDE", "ide", ide.String(), "files", n)

	if err := os.Remove(archive); err != nil {
		return "", fmt.Errorf("failed to remove %s: %w", archive, err)
	}
	return dest, nil
}

// check runs the verifier, teeing its output into the log file.
func (v *Verifier) check(ctx context.Context, report Report) error {
	if err := os.MkdirAll(filepath.Dir(report.LogFile), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.Create(report.LogFile)
	if err != nil {
		return fmt.Errorf("failed to create verification log: %w", err)
	}
	defer func() {
		_ = logFile.Close()
	}()

	args := append([]string{"-jar", report.Jar, "check-plugin", report.Plugin}, report.IDEDirs...)
	v.logger.Info("running verification", "plugin", report.Plugin, "ides", report.IDEDirs)
	v.logger.Debug("verifier command", "java", v.opts.JavaBinary, "args", args)

	if err := v.runner.Run(ctx, v.opts.JavaBinary, args, io.MultiWriter(logFile, v.out)); err != nil {
		return fmt.Errorf("verifier did not complete: %w", err)
	}
	return logFile.Sync()
}

func (v *Verifier) printBanner() {
	red := color.New(color.FgRed, color.Bold)
	for _, line := range banner {
		_, _ = red.Fprintln(v.out, line)
	}
}

// scanLog returns every line of the log that reports compatibility problems.
func scanLog(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read verification log: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var problems []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if problemPattern.MatchString(line) {
			problems = append(problems, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan verification log: %w", err)
	}
	return problems, nil
}

type noopGrouper struct{}

func (noopGrouper) Group(string) {}
func (noopGrouper) EndGroup()    {}
