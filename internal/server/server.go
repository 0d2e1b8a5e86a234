// Package server exposes the review pipeline over HTTP for webhook-driven
// runs: a PR event comes in, the pipeline runs against the local checkout,
// and the confirmed issues optionally go back to GitHub as review comments.
package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/reviewloop/reviewloop/internal/config"
	"github.com/reviewloop/reviewloop/internal/diffctx"
	"github.com/reviewloop/reviewloop/internal/github"
	"github.com/reviewloop/reviewloop/internal/lint"
	"github.com/reviewloop/reviewloop/internal/models"
	"github.com/reviewloop/reviewloop/internal/pipeline"
)

// ReviewRequest is the webhook payload
type ReviewRequest struct {
	RepoPath       string `json:"repo_path"`
	BaseRef        string `json:"base_ref"`
	HeadRef        string `json:"head_ref"`
	LintReportPath string `json:"lint_report_path,omitempty"`
	Checkout       bool   `json:"checkout,omitempty"`

	// Set these to post the findings back as a PR review
	PostComments bool   `json:"post_comments,omitempty"`
	Owner        string `json:"owner,omitempty"`
	Repo         string `json:"repo,omitempty"`
	PRNumber     int    `json:"pr_number,omitempty"`
}

// ReviewResponse is the webhook reply
type ReviewResponse struct {
	ConfirmedIssues []models.RiskItem `json:"confirmed_issues"`
	FinalReport     string            `json:"final_report"`
	Metadata        map[string]any    `json:"metadata"`
	CommentsPosted  int               `json:"comments_posted,omitempty"`
	CommentsSkipped int               `json:"comments_skipped,omitempty"`
}

// Server handles webhook requests
type Server struct {
	cfg    *config.Config
	driver *pipeline.Driver
	logger *slog.Logger
}

// New builds a server around a pipeline driver
func New(cfg *config.Config, driver *pipeline.Driver) *Server {
	return &Server{
		cfg:    cfg,
		driver: driver,
		logger: slog.Default().With("component", "server"),
	}
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/review", s.handleReview)
	return mux
}

// ListenAndServe runs the server on the configured address
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("webhook server listening", "addr", s.cfg.Server.Addr)
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintln(w, `{"status":"ok"}`)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if !s.verifySignature(r, body) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var req ReviewRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if req.RepoPath == "" || req.BaseRef == "" || req.HeadRef == "" {
		http.Error(w, "repo_path, base_ref, and head_ref are required", http.StatusBadRequest)
		return
	}

	var lintErrors []models.LintError
	if req.LintReportPath != "" {
		lintErrors, err = lint.LoadReport(req.LintReportPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to load lint report: %v", err), http.StatusBadRequest)
			return
		}
	}

	state, err := s.driver.Run(r.Context(), pipeline.Request{
		RepoPath:   req.RepoPath,
		BaseRef:    req.BaseRef,
		HeadRef:    req.HeadRef,
		LintErrors: lintErrors,
		Checkout:   req.Checkout,
	})
	if err != nil {
		s.logger.Error("review failed", "error", err)
		http.Error(w, fmt.Sprintf("review failed: %v", err), http.StatusUnprocessableEntity)
		return
	}

	resp := ReviewResponse{
		ConfirmedIssues: state.ConfirmedIssues,
		FinalReport:     state.FinalReport,
		Metadata:        state.Metadata,
	}

	if req.PostComments && req.Owner != "" && req.Repo != "" && req.PRNumber > 0 {
		posted, skipped, err := s.postComments(r, req, state)
		if err != nil {
			s.logger.Error("comment posting failed", "error", err)
		} else {
			resp.CommentsPosted = posted
			resp.CommentsSkipped = skipped
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) postComments(r *http.Request, req ReviewRequest, state *pipeline.RunState) (int, int, error) {
	if s.cfg.GitHub.Token == "" {
		return 0, 0, fmt.Errorf("no github token configured")
	}
	dc, err := diffctx.Parse(state.Diff)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to re-parse diff: %w", err)
	}

	comments, skipped := github.BuildComments(
		github.CommentableLines(dc), state.ConfirmedIssues, s.cfg.GitHub.MaxComments)
	if len(comments) == 0 {
		return 0, len(skipped), nil
	}

	poster := github.NewPoster(s.cfg.GitHub.Token)
	if err := poster.PostReview(r.Context(), req.Owner, req.Repo, req.PRNumber, comments, skipped); err != nil {
		return 0, 0, err
	}
	return len(comments), len(skipped), nil
}

// verifySignature checks the HMAC-SHA256 webhook signature when a secret
// is configured; without one, all requests pass
func (s *Server) verifySignature(r *http.Request, body []byte) bool {
	secret := s.cfg.Server.WebhookSecret
	if secret == "" {
		return true
	}
	sig := r.Header.Get("X-Hub-Signature-256")
	if len(sig) < 8 || sig[:7] != "sha256=" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig[7:]), []byte(expected))
}
