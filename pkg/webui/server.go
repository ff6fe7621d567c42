// Package webui provides the HTTP API for monitoring the team and asking it for reviews.
package webui

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"devteam/pkg/chat"
	"devteam/pkg/config"
	"devteam/pkg/logx"
	"devteam/pkg/metrics"
	"devteam/pkg/project"
	"devteam/pkg/review"
	"devteam/pkg/scheduler"
	"devteam/pkg/team"
	"devteam/pkg/work"
)

// AuthUsername is the Basic auth user name expected when a password is configured.
const AuthUsername = "devteam"

// DefaultChatLimit caps GET /api/chat when no limit is given.
const DefaultChatLimit = 100

// maxLogEntries caps GET /api/logs.
const maxLogEntries = 1000

// AgentSource lists the team.
type AgentSource interface {
	All() []team.Agent
	ByRole(role team.Role) []team.Agent
}

// WorkSource lists agent work records.
type WorkSource interface {
	List() []work.AgentWork
}

// QueueSource exposes the scheduler queue.
type QueueSource interface {
	Snapshot() (active *scheduler.WorkItem, pending []scheduler.WorkItem)
}

// ReviewSource reads review contexts.
type ReviewSource interface {
	Get(pr int) (review.Context, bool)
	List() []review.Context
}

// ReviewStarter launches a background review.
type ReviewStarter interface {
	Start(ctx context.Context, req review.Request, reviewers []team.Agent) (review.Request, error)
}

// ChatService is the chat feed the API reads and posts to.
type ChatService interface {
	Post(ctx context.Context, req *chat.PostRequest) (*chat.Message, error)
	History(channel string, limit int) []chat.Message
	DefaultChannel() string
}

// ProjectSource lists registered projects.
type ProjectSource interface {
	IDs() []string
	Project(id string) (project.Project, *project.Graph, error)
}

// TeamMetricsSource reads aggregated totals back from Prometheus.
type TeamMetricsSource interface {
	GetTeamMetrics(ctx context.Context) (*metrics.TeamMetrics, error)
}

// Deps are the components the API serves. Nil sources answer 503.
type Deps struct {
	Agents   AgentSource
	Work     WorkSource
	Queue    QueueSource
	Reviews  ReviewSource
	Starter  ReviewStarter
	Chat     ChatService
	Projects ProjectSource
	Team     TeamMetricsSource
	Gatherer prometheus.Gatherer

	// Secrets, ProjectDir and Password back the /api/secrets endpoints. The password
	// also enables Basic auth; an empty password leaves the API open.
	Secrets    *config.Secrets
	ProjectDir string
	Password   string

	DefaultRepository string
}

// Server is the web API server.
type Server struct {
	deps    Deps
	logger  *logx.Logger
	stopped chan struct{}
}

// NewServer creates a new API server.
func NewServer(deps Deps) *Server {
	if deps.DefaultRepository == "" {
		deps.DefaultRepository = chat.DefaultRepository
	}
	return &Server{deps: deps, logger: logx.NewLogger("webui"), stopped: make(chan struct{})}
}

// apiResponse is the envelope for mutations and failures.
type apiResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, apiResponse{Success: false, Error: msg})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter) {
	s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (s *Server) unavailable(w http.ResponseWriter, what string) {
	s.writeError(w, http.StatusServiceUnavailable, what+" not available")
}

// requireAuth wraps an HTTP handler with Basic Authentication when a password is set.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Password == "" {
			next(w, r)
			return
		}

		username, password, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(username), []byte(AuthUsername)) != 1 ||
			subtle.ConstantTimeCompare([]byte(password), []byte(s.deps.Password)) != 1 {
			if ok {
				s.logger.Warn("Failed authentication attempt from %s (username: %s)", r.RemoteAddr, username)
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="devteam"`)
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// RegisterRoutes sets up HTTP routes for the API.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/healthz", s.handleHealth)

	mux.HandleFunc("/api/agents", s.requireAuth(s.handleAgents))
	mux.HandleFunc("/api/work", s.requireAuth(s.handleWork))
	mux.HandleFunc("/api/projects", s.requireAuth(s.handleProjects))
	mux.HandleFunc("/api/reviews", s.requireAuth(s.handleReviews))
	mux.HandleFunc("/api/reviews/{pr}", s.requireAuth(s.handleReview))
	mux.HandleFunc("/api/chat", s.requireAuth(s.handleChat))
	mux.HandleFunc("/api/logs", s.requireAuth(s.handleLogs))
	mux.HandleFunc("/api/metrics/team", s.requireAuth(s.handleTeamMetrics))

	mux.HandleFunc("/api/secrets", s.requireAuth(s.handleSecretsRouter))
	mux.HandleFunc("/api/secrets/{name}", s.requireAuth(s.handleSecretsDelete))

	if s.deps.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// handleHealth implements GET /api/healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	resp := map[string]any{"status": "ok"}
	if s.deps.Queue != nil {
		active, pending := s.deps.Queue.Snapshot()
		resp["busy"] = active != nil
		resp["queue_depth"] = len(pending)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleAgents implements GET /api/agents.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	if s.deps.Agents == nil {
		s.unavailable(w, "agent directory")
		return
	}
	agents := s.deps.Agents.All()
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	s.writeJSON(w, http.StatusOK, agents)
	s.logger.Debug("Served %d agents", len(agents))
}

// WorkResponse is the body of GET /api/work.
type WorkResponse struct {
	Active  *scheduler.WorkItem  `json:"active"`
	Pending []scheduler.WorkItem `json:"pending"`
	Work    []work.AgentWork     `json:"work"`
}

// handleWork implements GET /api/work: the queue plus every work record.
// ?agent= filters the records.
func (s *Server) handleWork(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	if s.deps.Work == nil {
		s.unavailable(w, "work store")
		return
	}

	resp := WorkResponse{Pending: []scheduler.WorkItem{}, Work: []work.AgentWork{}}
	if s.deps.Queue != nil {
		active, pending := s.deps.Queue.Snapshot()
		resp.Active = active
		if pending != nil {
			resp.Pending = pending
		}
	}
	agent := r.URL.Query().Get("agent")
	for _, aw := range s.deps.Work.List() {
		if agent == "" || aw.AgentID == agent {
			resp.Work = append(resp.Work, aw)
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// ProjectSummary is one entry of GET /api/projects.
type ProjectSummary struct {
	project.Project
	Counts map[project.Status]int `json:"counts"`
	Ready  []string               `json:"ready"`
}

// handleProjects implements GET /api/projects.
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	if s.deps.Projects == nil {
		s.unavailable(w, "project registry")
		return
	}

	out := make([]ProjectSummary, 0)
	for _, id := range s.deps.Projects.IDs() {
		p, g, err := s.deps.Projects.Project(id)
		if err != nil {
			continue
		}
		sum := ProjectSummary{Project: p, Counts: g.Counts(), Ready: []string{}}
		sum.Tasks = g.Tasks()
		for _, t := range g.Ready() {
			sum.Ready = append(sum.Ready, t.ID)
		}
		out = append(out, sum)
	}
	s.writeJSON(w, http.StatusOK, out)
}

// ReviewRequestBody is the body of POST /api/reviews.
type ReviewRequestBody struct {
	Repository string `json:"repository"`
	PRNumber   int    `json:"pr_number"`
	Requester  string `json:"requester"`
	Channel    string `json:"channel"`
}

// handleReviews implements GET /api/reviews (list) and POST /api/reviews (start).
func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if s.deps.Reviews == nil {
			s.unavailable(w, "review contexts")
			return
		}
		list := s.deps.Reviews.List()
		if list == nil {
			list = []review.Context{}
		}
		s.writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		s.handleReviewStart(w, r)
	default:
		s.methodNotAllowed(w)
	}
}

func (s *Server) handleReviewStart(w http.ResponseWriter, r *http.Request) {
	if s.deps.Starter == nil || s.deps.Agents == nil {
		s.unavailable(w, "review pipeline")
		return
	}

	var body ReviewRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Repository == "" {
		body.Repository = s.deps.DefaultRepository
	}
	if body.Requester == "" {
		body.Requester = "web"
	}
	if body.Channel == "" && s.deps.Chat != nil {
		body.Channel = s.deps.Chat.DefaultChannel()
	}

	req := review.Request{
		Repository: body.Repository,
		PRNumber:   body.PRNumber,
		Channel:    body.Channel,
		Requester:  body.Requester,
		Author:     team.HumanAuthor(body.Requester),
	}
	//nolint:contextcheck // the review outlives the HTTP request
	started, err := s.deps.Starter.Start(context.WithoutCancel(r.Context()), req, review.ChatReviewers(s.deps.Agents))
	if err != nil {
		status := http.StatusInternalServerError
		if review.IsValidationError(err) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err.Error())
		return
	}

	s.logger.Info("🔍 Review %s of %s#%d requested by %s", started.ID, started.Repository, started.PRNumber, started.Requester)
	s.writeJSON(w, http.StatusAccepted, apiResponse{Success: true, ID: started.ID})
}

// handleReview implements GET /api/reviews/{pr}.
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	if s.deps.Reviews == nil {
		s.unavailable(w, "review contexts")
		return
	}
	pr, err := strconv.Atoi(r.PathValue("pr"))
	if err != nil || pr <= 0 {
		s.writeError(w, http.StatusBadRequest, "pr must be a positive number")
		return
	}
	rc, ok := s.deps.Reviews.Get(pr)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("no review for PR #%d", pr))
		return
	}
	s.writeJSON(w, http.StatusOK, rc)
}

// handleChat implements GET /api/chat (history) and POST /api/chat (post message).
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chat == nil {
		s.unavailable(w, "chat service")
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleChatRead(w, r)
	case http.MethodPost:
		s.handleChatPost(w, r)
	default:
		s.methodNotAllowed(w)
	}
}

// handleChatPost posts a message as a human. Subscribers such as the command router
// see it like any other post.
func (s *Server) handleChatPost(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text    string `json:"text"`
		Channel string `json:"channel"`
		Author  string `json:"author"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if body.Author == "" {
		body.Author = "@human"
	}

	msg, err := s.deps.Chat.Post(r.Context(), &chat.PostRequest{
		Channel: body.Channel,
		Author:  body.Author,
		Text:    body.Text,
	})
	if err != nil {
		s.logger.Error("Failed to post chat message: %v", err)
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, msg)
}

// handleChatRead returns ?channel= history, oldest first, capped by ?limit=.
func (s *Server) handleChatRead(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := DefaultChatLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		limit = n
	}
	msgs := s.deps.Chat.History(q.Get("channel"), limit)
	if msgs == nil {
		msgs = []chat.Message{}
	}
	s.writeJSON(w, http.StatusOK, msgs)
}

// handleLogs implements GET /api/logs?component=&since=RFC3339.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	component := query.Get("component")
	var since time.Time
	if v := query.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.logger.Warn("Invalid since parameter: %s", v)
			s.writeError(w, http.StatusBadRequest, "invalid since parameter (use RFC3339)")
			return
		}
		since = t
	}

	logs := logx.GetRecentEntries(component, since)
	if len(logs) > maxLogEntries {
		logs = logs[len(logs)-maxLogEntries:]
	}
	if logs == nil {
		logs = []logx.Entry{}
	}
	s.writeJSON(w, http.StatusOK, logs)
}

// handleTeamMetrics implements GET /api/metrics/team.
func (s *Server) handleTeamMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	if s.deps.Team == nil {
		s.unavailable(w, "metrics query service")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	m, err := s.deps.Team.GetTeamMetrics(ctx)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

// StartServer serves the API on host:port until ctx is cancelled.
func (s *Server) StartServer(ctx context.Context, host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting API server on %s", addr)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server error: %v", err)
		}
	}()

	go func() {
		defer close(s.stopped)
		<-ctx.Done()
		s.logger.Info("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		//nolint:contextcheck // parent context is cancelled; shutdown needs a fresh one
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown failed: %v", err)
		}
	}()
	return nil
}

// Wait blocks until a server started with StartServer has shut down, or ctx is done.
// It must only be called after StartServer.
func (s *Server) Wait(ctx context.Context) error {
	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
