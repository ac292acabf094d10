package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Defaults used when the configuration leaves a field empty.
const (
	DefaultBaseBranch      = "master"
	DefaultRemote          = "origin"
	DefaultComponent       = "intellij"
	DefaultPlatformName    = "IntelliJ"
	DefaultPropertiesGlob  = "gradle.properties"
	DefaultChangelogGlob   = "CHANGELOG.md"
	DefaultWorkflowsGlob   = ".github/workflows/*"
	DefaultVerifierAction  = "uses: ChrisCarini/intellij-platform-plugin-verifier-action"
	DefaultTokenEnv        = "GITHUB_TOKEN"
	DefaultGitHubAPIURL    = "https://api.github.com"
	DefaultVerifierVersion = "LATEST"
	DefaultPluginLocation  = "build/distributions/*.zip"
	DefaultIDERepository   = "https://www.jetbrains.com/intellij-repository"
	DefaultVerifierMaven   = "https://packages.jetbrains.team/maven/p/intellij-plugin-verifier/intellij-plugin-verifier/org/jetbrains/intellij/plugins/verifier-cli"
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultListenAddr      = "127.0.0.1:8787"
)

// DefaultEditions are the IDE editions whose version tokens are rewritten in workflow files.
var DefaultEditions = []string{"ideaIC", "ideaIU"}

// Config represents the complete ijsync configuration
type Config struct {
	Repo    RepoConfig    `yaml:"repo"`
	Release ReleaseConfig `yaml:"release"`
	Files   FilesConfig   `yaml:"files"`
	Commit  CommitConfig  `yaml:"commit"`
	Auth    AuthConfig    `yaml:"auth"`
	GitHub  GitHubConfig  `yaml:"github"`
	HTTP    HTTPConfig    `yaml:"http"`
	Verify  VerifyConfig  `yaml:"verify"`
	Serve   ServeConfig   `yaml:"serve"`
}

// RepoConfig describes the plugin repository being upgraded
type RepoConfig struct {
	Dir          string `yaml:"dir"`
	Owner        string `yaml:"owner"`
	Name         string `yaml:"name"`
	BaseBranch   string `yaml:"base_branch"`
	Remote       string `yaml:"remote"`
	BranchPrefix string `yaml:"branch_prefix"`
	Component    string `yaml:"component"`
}

// ReleaseConfig configures platform release discovery
type ReleaseConfig struct {
	MetadataURL  string `yaml:"metadata_url"`
	PlatformName string `yaml:"platform_name"`
}

// FilesConfig locates the managed files, relative to Repo.Dir
type FilesConfig struct {
	Properties     string   `yaml:"properties"`
	Changelog      string   `yaml:"changelog"`
	Workflows      string   `yaml:"workflows"`
	VerifierAction string   `yaml:"verifier_action"`
	Editions       []string `yaml:"editions"`
}

// CommitConfig sets the identity used for upgrade commits
type CommitConfig struct {
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// AuthConfig configures the hosting API credential
type AuthConfig struct {
	TokenFile string `yaml:"token_file"`
	TokenEnv  string `yaml:"token_env"`
}

// GitHubConfig configures the hosting API endpoint
type GitHubConfig struct {
	APIURL string `yaml:"api_url"`
}

// HTTPConfig configures outbound HTTP calls
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// VerifyConfig configures the plugin verifier run
type VerifyConfig struct {
	VerifierVersion    string   `yaml:"verifier_version"`
	PluginLocation     string   `yaml:"plugin_location"`
	IDEVersions        []string `yaml:"ide_versions"`
	WorkDir            string   `yaml:"work_dir"`
	OutputLog          string   `yaml:"output_log"`
	IDERepositoryURL   string   `yaml:"ide_repository_url"`
	VerifierMavenURL   string   `yaml:"verifier_maven_url"`
	VerifierReleaseURL string   `yaml:"verifier_release_url"`
	JavaBinary         string   `yaml:"java_binary"`
}

// ServeConfig configures the webhook server
type ServeConfig struct {
	ListenAddr              string   `yaml:"listen_addr"`
	GitHubWebhookSecretFile string   `yaml:"github_webhook_secret_file"`
	AllowedEventTypes       []string `yaml:"allowed_event_types"`
	AllowedRefs             []string `yaml:"allowed_refs"`
}

// Load reads and parses the configuration file. A missing file is not an
// error when allowMissing is set; defaults are used instead.
func Load(path string, allowMissing bool) (*Config, error) {
	path = os.ExpandEnv(path)

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case allowMissing && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Finalize expands variables, applies defaults and validates the configuration.
func (c *Config) Finalize() error {
	if err := c.expandEnv(); err != nil {
		return err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// expandEnv expands environment variables and "~" in string fields
func (c *Config) expandEnv() error {
	for _, s := range []*string{
		&c.Repo.Owner, &c.Repo.Name, &c.Repo.BaseBranch, &c.Repo.BranchPrefix,
		&c.Release.MetadataURL,
		&c.Commit.AuthorName, &c.Commit.AuthorEmail,
		&c.GitHub.APIURL,
		&c.Verify.VerifierVersion, &c.Verify.PluginLocation,
		&c.Serve.ListenAddr,
	} {
		*s = os.ExpandEnv(*s)
	}

	for _, p := range []*string{
		&c.Repo.Dir,
		&c.Auth.TokenFile,
		&c.Verify.WorkDir,
		&c.Verify.OutputLog,
		&c.Serve.GitHubWebhookSecretFile,
	} {
		expanded, err := homedir.Expand(os.ExpandEnv(*p))
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Repo.Dir == "" {
		c.Repo.Dir = "."
	}
	if (c.Repo.Owner == "" || c.Repo.Name == "") && os.Getenv("GITHUB_REPOSITORY") != "" {
		owner, name, _ := strings.Cut(os.Getenv("GITHUB_REPOSITORY"), "/")
		if c.Repo.Owner == "" {
			c.Repo.Owner = owner
		}
		if c.Repo.Name == "" {
			c.Repo.Name = name
		}
	}
	setDefault(&c.Repo.BaseBranch, DefaultBaseBranch)
	setDefault(&c.Repo.Remote, DefaultRemote)
	setDefault(&c.Repo.BranchPrefix, c.Repo.Owner)
	setDefault(&c.Repo.Component, DefaultComponent)

	setDefault(&c.Release.PlatformName, DefaultPlatformName)

	setDefault(&c.Files.Properties, DefaultPropertiesGlob)
	setDefault(&c.Files.Changelog, DefaultChangelogGlob)
	setDefault(&c.Files.Workflows, DefaultWorkflowsGlob)
	setDefault(&c.Files.VerifierAction, DefaultVerifierAction)
	if len(c.Files.Editions) == 0 {
		c.Files.Editions = append([]string(nil), DefaultEditions...)
	}

	setDefault(&c.Commit.AuthorName, c.Repo.Owner)
	if c.Commit.AuthorEmail == "" && c.Commit.AuthorName != "" {
		c.Commit.AuthorEmail = c.Commit.AuthorName + "@users.noreply.github.com"
	}

	if c.Auth.TokenFile == "" {
		setDefault(&c.Auth.TokenEnv, DefaultTokenEnv)
	}
	setDefault(&c.GitHub.APIURL, DefaultGitHubAPIURL)
	c.GitHub.APIURL = strings.TrimRight(c.GitHub.APIURL, "/")

	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = DefaultHTTPTimeout
	}

	setDefault(&c.Verify.VerifierVersion, DefaultVerifierVersion)
	setDefault(&c.Verify.PluginLocation, DefaultPluginLocation)
	setDefault(&c.Verify.IDERepositoryURL, DefaultIDERepository)
	setDefault(&c.Verify.VerifierMavenURL, DefaultVerifierMaven)
	setDefault(&c.Verify.JavaBinary, "java")

	setDefault(&c.Serve.ListenAddr, DefaultListenAddr)
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Repo.Dir == "" {
		return fmt.Errorf("repo.dir is required")
	}
	if strings.Contains(c.Repo.Owner, "/") || strings.Contains(c.Repo.Name, "/") {
		return fmt.Errorf("repo.owner and repo.name must not contain '/'")
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must not be negative: %s", c.HTTP.Timeout)
	}
	if c.Auth.TokenFile != "" && c.Auth.TokenEnv != "" {
		return fmt.Errorf("auth: only one of token_file or token_env may be set")
	}
	for _, e := range c.Files.Editions {
		if e == "" || strings.ContainsAny(e, ": \t") {
			return fmt.Errorf("files.editions contains an invalid edition %q", e)
		}
	}
	for _, tok := range c.Verify.IDEVersions {
		if edition, ver, ok := strings.Cut(strings.TrimSpace(tok), ":"); !ok || edition == "" || ver == "" {
			return fmt.Errorf("verify.ide_versions entry %q must have the form <edition>:<version>", tok)
		}
	}
	return nil
}

// ValidatePublish checks the fields needed to open pull requests
func (c *Config) ValidatePublish() error {
	if c.Repo.Owner == "" {
		return fmt.Errorf("repo.owner is required (or set GITHUB_REPOSITORY)")
	}
	if c.Repo.Name == "" {
		return fmt.Errorf("repo.name is required (or set GITHUB_REPOSITORY)")
	}
	if c.Repo.BranchPrefix == "" {
		return fmt.Errorf("repo.branch_prefix is required")
	}
	if c.Commit.AuthorName == "" || c.Commit.AuthorEmail == "" {
		return fmt.Errorf("commit.author_name and commit.author_email are required")
	}
	return nil
}

// ValidateServe checks the fields needed by the webhook server
func (c *Config) ValidateServe() error {
	if c.Serve.ListenAddr == "" {
		return fmt.Errorf("serve.listen_addr is required")
	}
	if c.Serve.GitHubWebhookSecretFile == "" {
		return fmt.Errorf("serve.github_webhook_secret_file is required")
	}
	return c.ValidatePublish()
}

// Token loads the hosting API token from the configured file or environment variable.
func (c *Config) Token() (string, error) {
	if c.Auth.TokenFile != "" {
		data, err := os.ReadFile(c.Auth.TokenFile)
		if err != nil {
			return "", fmt.Errorf("failed to read token file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	token := strings.TrimSpace(os.Getenv(c.Auth.TokenEnv))
	if token == "" {
		return "", fmt.Errorf("no token found in $%s", c.Auth.TokenEnv)
	}
	return token, nil
}

// BranchName returns the deterministic upgrade branch for a platform version
func (c *Config) BranchName(platformVersion string) string {
	return fmt.Sprintf("%s/upgrade-%s-%s", c.Repo.BranchPrefix, c.Repo.Component, platformVersion)
}

// UpgradeTitle returns the commit message and pull request title for a platform version
func (c *Config) UpgradeTitle(platformVersion string) string {
	return fmt.Sprintf("Upgrading %s to %s", c.Release.PlatformName, platformVersion)
}
