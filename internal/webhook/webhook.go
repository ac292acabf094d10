package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/schaermu/ijsync/internal/config"
	"github.com/schaermu/ijsync/internal/upgrade"
)

// DefaultEventTypes are accepted when no event filter is configured.
var DefaultEventTypes = []string{"push", "workflow_dispatch", "repository_dispatch"}

// Runner performs one upgrade run
type Runner interface {
	Run(ctx context.Context) (upgrade.Result, error)
}

// GitHubEvent represents the relevant fields shared by the accepted webhook payloads
type GitHubEvent struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Action     string `json:"action"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// Server implements the webhook HTTP server
type Server struct {
	cfg         *config.Config
	runner      Runner
	logger      *slog.Logger
	secret      []byte
	runMu       sync.Mutex // guards runRunning and runPending
	runRunning  bool       // whether an upgrade is currently in progress
	runPending  bool       // whether another upgrade is needed after the current one
	debounce    *debouncer
	eventTypes  []string
	allowedRefs []string
}

// debouncer implements debouncing for webhook events
type debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	delay    time.Duration
	callback func()
}

// NewServer creates a new webhook server
func NewServer(cfg *config.Config, runner Runner, logger *slog.Logger) (*Server, error) {
	secret, err := os.ReadFile(cfg.Serve.GitHubWebhookSecretFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook secret: %w", err)
	}
	secret = []byte(strings.TrimSpace(string(secret)))
	if len(secret) == 0 {
		return nil, fmt.Errorf("webhook secret file %s is empty", cfg.Serve.GitHubWebhookSecretFile)
	}

	eventTypes := cfg.Serve.AllowedEventTypes
	if len(eventTypes) == 0 {
		eventTypes = DefaultEventTypes
	}
	allowedRefs := cfg.Serve.AllowedRefs
	if len(allowedRefs) == 0 && cfg.Repo.BaseBranch != "" {
		allowedRefs = []string{"refs/heads/" + cfg.Repo.BaseBranch}
	}

	return &Server{
		cfg:         cfg,
		runner:      runner,
		logger:      logger,
		secret:      secret,
		debounce:    &debouncer{delay: 2 * time.Second},
		eventTypes:  eventTypes,
		allowedRefs: allowedRefs,
	}, nil
}

// Start starts the webhook HTTP server, performing an initial upgrade run first.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("performing initial upgrade before starting webhook server")
	s.performRun(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebhook)

	server := &http.Server{
		Addr:              s.cfg.Serve.ListenAddr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	ln, err := listen(s.cfg.Serve.ListenAddr, s.logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("webhook server starting", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down webhook server")
		s.debounce.stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleWebhook handles incoming GitHub webhook requests
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.logger.Warn("rejecting non-POST request", "method", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" {
		s.logger.Warn("rejecting request with invalid content type", "content_type", contentType)
		http.Error(w, "Invalid content type", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MB limit
	if err != nil {
		s.logger.Error("failed to read request body", "error", err)
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()

	signature := r.Header.Get("X-Hub-Signature-256")
	if !s.verifySignature(body, signature) {
		s.logger.Warn("rejecting request with invalid signature")
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	s.logger.Info("received webhook", "event", eventType, "delivery", r.Header.Get("X-GitHub-Delivery"))

	if eventType == "ping" {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "pong\n")
		return
	}

	if !s.isEventTypeAllowed(eventType) {
		s.logger.Info("ignoring disallowed event type", "event", eventType)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "Event type not configured for upgrade\n")
		return
	}

	var event GitHubEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.logger.Error("failed to parse webhook payload", "error", err)
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	// repository_dispatch payloads carry no ref
	if eventType != "repository_dispatch" && !s.isRefAllowed(event.Ref) {
		s.logger.Info("ignoring disallowed ref", "ref", event.Ref)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "Ref not configured for upgrade\n")
		return
	}

	s.logger.Info("webhook accepted",
		"event", eventType,
		"ref", event.Ref,
		"action", event.Action,
		"commit", event.After,
		"repo", event.Repository.FullName)

	s.debounce.trigger(func() {
		s.performRun(context.Background())
	})

	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "Upgrade triggered\n")
}

// verifySignature verifies the GitHub webhook signature
func (s *Server) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	// GitHub signature format: sha256=<hex>
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

func (s *Server) isEventTypeAllowed(eventType string) bool {
	return slices.Contains(s.eventTypes, eventType)
}

// isRefAllowed checks the ref against the allowed list; an empty list allows all
func (s *Server) isRefAllowed(ref string) bool {
	if len(s.allowedRefs) == 0 {
		return true
	}
	return slices.Contains(s.allowedRefs, ref)
}

// performRun executes an upgrade with single-flight semantics.
// If a run is already in progress, at most one additional run is queued;
// further concurrent requests are dropped to avoid unbounded goroutine pile-up.
func (s *Server) performRun(ctx context.Context) {
	s.runMu.Lock()
	if s.runRunning {
		s.runPending = true
		s.runMu.Unlock()
		s.logger.Info("upgrade already in progress, queuing pending re-run")
		return
	}
	s.runRunning = true
	s.runMu.Unlock()

	for {
		s.logger.Info("performing upgrade run")

		res, err := s.runner.Run(ctx)
		if err != nil {
			s.logger.Error("upgrade failed", "state", res.State, "error", err)
		} else {
			s.logger.Info("upgrade completed",
				"state", res.State,
				"version", res.Version.String(),
				"branch", res.Branch,
				"pull_request", res.PullRequestURL)
		}

		// Release the running slot unless another run was requested meanwhile.
		s.runMu.Lock()
		if !s.runPending {
			s.runRunning = false
			s.runMu.Unlock()
			break
		}
		s.runPending = false
		s.runMu.Unlock()

		s.logger.Info("re-running upgrade due to pending request")
	}
}

// trigger schedules the callback to run after the debounce delay
func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		cb := d.callback
		d.mu.Unlock()

		if cb != nil {
			cb()
		}
	})
}

// stop cancels a scheduled callback that has not fired yet
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
}
