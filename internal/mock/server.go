package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const maxLogs = 1000

// Server is an in-memory stand-in for the chirp API
type Server struct {
	config     *Config
	store      *store
	httpServer *http.Server
	listener   net.Listener
	logger     *zap.Logger

	logs      []RequestLog
	logsMutex sync.RWMutex
	requests  int

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewServer creates a new mock server
func NewServer(config *Config, logger *zap.Logger) *Server {
	if config == nil {
		config = &Config{}
	}
	applyDefaults(config)
	if logger == nil {
		logger = zap.NewNop()
	}

	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Server{
		config: config,
		store:  newStore(),
		logger: logger.With(zap.String("component", "mock")),
		logs:   make([]RequestLog, 0),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Handler returns the API routes, for embedding or httptest
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /actuator/health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/tweets", s.api(s.handleCreateTweet))
	mux.HandleFunc("POST /api/v1/users/{userId}/follow/{targetId}", s.api(s.handleFollow))
	mux.HandleFunc("DELETE /api/v1/users/{userId}/follow/{targetId}", s.api(s.handleUnfollow))
	mux.HandleFunc("GET /api/v1/users/{userId}/timeline", s.api(s.handleTimeline))
	mux.HandleFunc("GET /api/v1/users/{userId}/tweets", s.api(s.handleUserTweets))
	mux.HandleFunc("GET /api/v1/users/{userId}/followers", s.api(s.handleFollowers))
	mux.HandleFunc("GET /api/v1/users/{userId}/following", s.api(s.handleFollowing))
	return mux
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("mock server error", zap.Error(err))
		}
	}()

	s.logger.Info("mock chirp server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Int("latency_ms", s.config.LatencyMs),
		zap.Float64("failure_rate", s.config.FailureRate))
	return nil
}

// Stop stops the mock server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

// GetAddress returns the server base URL
func (s *Server) GetAddress() string {
	if s.listener != nil {
		return "http://" + s.listener.Addr().String()
	}
	return fmt.Sprintf("http://%s:%d", s.config.Host, s.config.Port)
}

// GetLogs returns the most recent requests
func (s *Server) GetLogs() []RequestLog {
	s.logsMutex.RLock()
	defer s.logsMutex.RUnlock()

	logs := make([]RequestLog, len(s.logs))
	copy(logs, s.logs)
	return logs
}

// Stats reports the store contents and the number of API requests served
func (s *Server) Stats() Stats {
	st := s.store.stats()
	s.logsMutex.RLock()
	st.Requests = s.requests
	s.logsMutex.RUnlock()
	return st
}

type apiHandler func(w http.ResponseWriter, r *http.Request) int

// api wraps a route with latency, failure injection and request logging
func (s *Server) api(h apiHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		delay, fail := s.draw()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		var status int
		if fail {
			status = http.StatusServiceUnavailable
			writeError(w, status, "injected failure")
		} else {
			status = h(w, r)
		}

		s.record(RequestLog{
			Timestamp: start,
			Method:    r.Method,
			Path:      r.URL.RequestURI(),
			UserID:    r.Header.Get("X-User-Id"),
			Status:    status,
			Injected:  fail,
			Duration:  time.Since(start),
		})
	}
}

func (s *Server) draw() (time.Duration, bool) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	delay := time.Duration(s.config.LatencyMs) * time.Millisecond
	if s.config.JitterMs > 0 {
		delay += time.Duration(s.rng.Intn(s.config.JitterMs)) * time.Millisecond
	}
	fail := s.config.FailureRate > 0 && s.rng.Float64() < s.config.FailureRate
	return delay, fail
}

func (s *Server) record(entry RequestLog) {
	s.logsMutex.Lock()
	defer s.logsMutex.Unlock()

	s.requests++
	if !s.config.Logging {
		return
	}
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[len(s.logs)-maxLogs:]
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

func (s *Server) handleCreateTweet(w http.ResponseWriter, r *http.Request) int {
	user := r.Header.Get("X-User-Id")
	if user == "" {
		return writeError(w, http.StatusBadRequest, "X-User-Id header is required")
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return writeError(w, http.StatusBadRequest, "invalid JSON body")
	}
	content := strings.TrimSpace(body.Content)
	if content == "" {
		return writeError(w, http.StatusBadRequest, "content is required")
	}
	if utf8.RuneCountInString(content) > s.config.MaxTweetChars {
		return writeError(w, http.StatusBadRequest, fmt.Sprintf("content exceeds %d characters", s.config.MaxTweetChars))
	}

	return writeJSON(w, http.StatusCreated, s.store.addTweet(user, content))
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) int {
	follower, followee := r.PathValue("userId"), r.PathValue("targetId")
	if follower == followee {
		return writeError(w, http.StatusBadRequest, "users cannot follow themselves")
	}
	if !s.store.follow(follower, followee) {
		return writeError(w, http.StatusConflict, "already following")
	}
	return writeJSON(w, http.StatusCreated, map[string]string{"followerId": follower, "followeeId": followee})
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) int {
	if !s.store.unfollow(r.PathValue("userId"), r.PathValue("targetId")) {
		return writeError(w, http.StatusNotFound, "not following")
	}
	w.WriteHeader(http.StatusNoContent)
	return http.StatusNoContent
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) int {
	return s.writePage(w, r, s.store.timeline(r.PathValue("userId")))
}

func (s *Server) handleUserTweets(w http.ResponseWriter, r *http.Request) int {
	return s.writePage(w, r, s.store.userTweets(r.PathValue("userId")))
}

func (s *Server) handleFollowers(w http.ResponseWriter, r *http.Request) int {
	return writeRefs(s, w, r, s.store.followersOf(r.PathValue("userId")))
}

func (s *Server) handleFollowing(w http.ResponseWriter, r *http.Request) int {
	return writeRefs(s, w, r, s.store.followingOf(r.PathValue("userId")))
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, tweets []*Tweet) int {
	limit, err := s.limit(r)
	if err != nil {
		return writeError(w, http.StatusBadRequest, err.Error())
	}
	page, err := paginate(tweets, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		return writeError(w, http.StatusBadRequest, err.Error())
	}
	return writeJSON(w, http.StatusOK, page)
}

func writeRefs(s *Server, w http.ResponseWriter, r *http.Request, refs []UserRef) int {
	limit, err := s.limit(r)
	if err != nil {
		return writeError(w, http.StatusBadRequest, err.Error())
	}
	page, err := paginate(refs, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		return writeError(w, http.StatusBadRequest, err.Error())
	}
	return writeJSON(w, http.StatusOK, page)
}

// limit parses ?limit, defaulting to 20 and clamping to MaxPageSize
func (s *Server) limit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return min(20, s.config.MaxPageSize), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return min(n, s.config.MaxPageSize), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
	return status
}

func writeError(w http.ResponseWriter, status int, msg string) int {
	return writeJSON(w, status, map[string]string{"error": msg})
}
