package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
)

func TestLoad(t *testing.T) {
	t.Setenv("GITHUB_REPOSITORY", "")

	tmpDir := t.TempDir()
	content := `
repo:
  dir: "/work/plugin"
  owner: "ChrisCarini"
  name: "sample-intellij-plugin"
  base_branch: "main"

release:
  platform_name: "IntelliJ"

files:
  editions: ["ideaIC", "ideaIU", "pycharmPC"]

commit:
  author_name: "ChrisCarini"
  author_email: "6374067+chriscarini@users.noreply.github.com"

auth:
  token_env: "PAT_TOKEN_FOR_IJ_UPDATE_ACTION"

http:
  timeout: 10s

verify:
  ide_versions:
    - "ideaIU:2023.1.2"
    - "ideaIC:2023.1.2"
`
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Repo.Dir != "/work/plugin" {
		t.Errorf("expected repo dir /work/plugin, got %s", cfg.Repo.Dir)
	}
	if cfg.Repo.BaseBranch != "main" {
		t.Errorf("expected base branch main, got %s", cfg.Repo.BaseBranch)
	}
	if cfg.Repo.BranchPrefix != "ChrisCarini" {
		t.Errorf("expected branch prefix to default to owner, got %s", cfg.Repo.BranchPrefix)
	}
	if len(cfg.Files.Editions) != 3 {
		t.Errorf("expected 3 editions, got %v", cfg.Files.Editions)
	}
	if cfg.HTTP.Timeout != 10*time.Second {
		t.Errorf("expected 10s timeout, got %s", cfg.HTTP.Timeout)
	}
	if cfg.Auth.TokenEnv != "PAT_TOKEN_FOR_IJ_UPDATE_ACTION" {
		t.Errorf("unexpected token env %s", cfg.Auth.TokenEnv)
	}
	if len(cfg.Verify.IDEVersions) != 2 {
		t.Errorf("expected 2 ide versions, got %v", cfg.Verify.IDEVersions)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")

	if _, err := Load(path, false); err == nil {
		t.Fatal("expected error for missing config file")
	}

	cfg, err := Load(path, true)
	if err != nil {
		t.Fatalf("expected defaults when missing file is allowed, got %v", err)
	}
	if cfg.Files.Properties != DefaultPropertiesGlob {
		t.Errorf("expected default properties glob, got %s", cfg.Files.Properties)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("repo: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, false); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Setenv("GITHUB_REPOSITORY", "octo/plugin")

	cfg := Config{}
	cfg.applyDefaults()

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"Repo.Dir", cfg.Repo.Dir, "."},
		{"Repo.Owner", cfg.Repo.Owner, "octo"},
		{"Repo.Name", cfg.Repo.Name, "plugin"},
		{"Repo.BaseBranch", cfg.Repo.BaseBranch, DefaultBaseBranch},
		{"Repo.Remote", cfg.Repo.Remote, DefaultRemote},
		{"Repo.BranchPrefix", cfg.Repo.BranchPrefix, "octo"},
		{"Repo.Component", cfg.Repo.Component, DefaultComponent},
		{"Release.PlatformName", cfg.Release.PlatformName, DefaultPlatformName},
		{"Files.Properties", cfg.Files.Properties, DefaultPropertiesGlob},
		{"Files.Changelog", cfg.Files.Changelog, DefaultChangelogGlob},
		{"Files.Workflows", cfg.Files.Workflows, DefaultWorkflowsGlob},
		{"Files.VerifierAction", cfg.Files.VerifierAction, DefaultVerifierAction},
		{"Commit.AuthorName", cfg.Commit.AuthorName, "octo"},
		{"Commit.AuthorEmail", cfg.Commit.AuthorEmail, "octo@users.noreply.github.com"},
		{"Auth.TokenEnv", cfg.Auth.TokenEnv, DefaultTokenEnv},
		{"GitHub.APIURL", cfg.GitHub.APIURL, DefaultGitHubAPIURL},
		{"Verify.VerifierVersion", cfg.Verify.VerifierVersion, DefaultVerifierVersion},
		{"Verify.JavaBinary", cfg.Verify.JavaBinary, "java"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("applyDefaults() %s = %q, want %q", c.name, c.got, c.want)
		}
	}
	if cfg.HTTP.Timeout != DefaultHTTPTimeout {
		t.Errorf("expected default timeout, got %s", cfg.HTTP.Timeout)
	}
	if strings.Join(cfg.Files.Editions, ",") != "ideaIC,ideaIU" {
		t.Errorf("unexpected default editions %v", cfg.Files.Editions)
	}
}

func TestApplyDefaults_TokenFileSuppressesTokenEnv(t *testing.T) {
	cfg := Config{Auth: AuthConfig{TokenFile: "/run/secrets/token"}}
	cfg.applyDefaults()
	if cfg.Auth.TokenEnv != "" {
		t.Errorf("expected no token env when token file is set, got %s", cfg.Auth.TokenEnv)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{Repo: RepoConfig{Owner: "octo", Name: "plugin"}}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "owner with slash", mutate: func(c *Config) { c.Repo.Owner = "octo/plugin" }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.HTTP.Timeout = -time.Second }, wantErr: true},
		{name: "both token sources", mutate: func(c *Config) { c.Auth.TokenFile = "/token" }, wantErr: true},
		{name: "edition with colon", mutate: func(c *Config) { c.Files.Editions = []string{"ideaIC:"} }, wantErr: true},
		{name: "empty edition", mutate: func(c *Config) { c.Files.Editions = []string{""} }, wantErr: true},
		{name: "ide version without colon", mutate: func(c *Config) { c.Verify.IDEVersions = []string{"ideaIU"} }, wantErr: true},
		{name: "ide version without version", mutate: func(c *Config) { c.Verify.IDEVersions = []string{"ideaIU:"} }, wantErr: true},
		{name: "ide version ok", mutate: func(c *Config) { c.Verify.IDEVersions = []string{"ideaIU:2023.1"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePublish(t *testing.T) {
	t.Setenv("GITHUB_REPOSITORY", "")

	cfg := Config{}
	cfg.applyDefaults()
	if err := cfg.ValidatePublish(); err == nil {
		t.Error("expected error without owner")
	}

	cfg = Config{Repo: RepoConfig{Owner: "octo", Name: "plugin"}}
	cfg.applyDefaults()
	if err := cfg.ValidatePublish(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateServe(t *testing.T) {
	cfg := Config{Repo: RepoConfig{Owner: "octo", Name: "plugin"}}
	cfg.applyDefaults()
	if err := cfg.ValidateServe(); err == nil {
		t.Error("expected error without webhook secret file")
	}
	cfg.Serve.GitHubWebhookSecretFile = "/secret"
	if err := cfg.ValidateServe(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("IJSYNC_TEST_HOME", "/home/testuser")
	t.Setenv("HOME", "/home/tilde")
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })

	cfg := Config{
		Repo: RepoConfig{
			Dir:   "~/src/plugin",
			Owner: "${IJSYNC_TEST_HOME}",
		},
		Auth: AuthConfig{
			TokenFile: "${IJSYNC_TEST_HOME}/token",
		},
		Verify: VerifyConfig{
			WorkDir: "~/verifier",
		},
		Serve: ServeConfig{
			ListenAddr:              "${IJSYNC_TEST_HOME}:8080",
			GitHubWebhookSecretFile: "${IJSYNC_TEST_HOME}/secret",
		},
	}

	if err := cfg.expandEnv(); err != nil {
		t.Fatal(err)
	}

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"Repo.Dir", cfg.Repo.Dir, "/home/tilde/src/plugin"},
		{"Repo.Owner", cfg.Repo.Owner, "/home/testuser"},
		{"Auth.TokenFile", cfg.Auth.TokenFile, "/home/testuser/token"},
		{"Verify.WorkDir", cfg.Verify.WorkDir, "/home/tilde/verifier"},
		{"Serve.ListenAddr", cfg.Serve.ListenAddr, "/home/testuser:8080"},
		{"Serve.GitHubWebhookSecretFile", cfg.Serve.GitHubWebhookSecretFile, "/home/testuser/secret"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("expandEnv() %s = %s, want %s", c.name, c.got, c.want)
		}
	}
}

func TestToken(t *testing.T) {
	tmpDir := t.TempDir()
	tokenPath := filepath.Join(tmpDir, "token")
	if err := os.WriteFile(tokenPath, []byte("  ghp_file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Config{Auth: AuthConfig{TokenFile: tokenPath}}
	token, err := cfg.Token()
	if err != nil || token != "ghp_file" {
		t.Errorf("Token() = %q, %v; want ghp_file", token, err)
	}

	t.Setenv("IJSYNC_TEST_TOKEN", "ghp_env")
	cfg = Config{Auth: AuthConfig{TokenEnv: "IJSYNC_TEST_TOKEN"}}
	token, err = cfg.Token()
	if err != nil || token != "ghp_env" {
		t.Errorf("Token() = %q, %v; want ghp_env", token, err)
	}

	cfg = Config{Auth: AuthConfig{TokenEnv: "IJSYNC_TEST_TOKEN_UNSET"}}
	if _, err := cfg.Token(); err == nil {
		t.Error("expected error for unset token env")
	}
	if _, err := (&Config{Auth: AuthConfig{TokenFile: filepath.Join(tmpDir, "missing")}}).Token(); err == nil {
		t.Error("expected error for missing token file")
	}
}

func TestBranchNameAndTitle(t *testing.T) {
	cfg := Config{Repo: RepoConfig{Owner: "ChrisCarini"}}
	cfg.applyDefaults()

	if got := cfg.BranchName("2023.1.0"); got != "ChrisCarini/upgrade-intellij-2023.1.0" {
		t.Errorf("BranchName() = %s", got)
	}
	if got := cfg.UpgradeTitle("2023.1.0"); got != "Upgrading IntelliJ to 2023.1.0" {
		t.Errorf("UpgradeTitle() = %s", got)
	}
}
