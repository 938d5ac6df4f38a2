package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cra88y/answerstream/config"
	"github.com/cra88y/answerstream/internal/answer"
	"github.com/cra88y/answerstream/internal/token"
	"github.com/cra88y/answerstream/provider"
)

// Server wires the answer gateway: provider client, token authority, state
// codec and HTTP handlers. All fields are set at construction and read-only
// afterwards; per-request state lives in the sessions.
type Server struct {
	cfg     *config.Config
	prov    provider.Provider
	auth    *token.Authority
	states  *token.StateCodec
	logger  *log.Logger
	metrics *metrics
}

// New builds the server from resolved configuration.
func New(cfg *config.Config) (*Server, error) {
	logger := log.New(log.Writer(), "[STREAM] ", log.LstdFlags)
	prov, err := provider.New(cfg.ProviderSettings(), log.New(log.Writer(), "[PROVIDER] ", log.LstdFlags))
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:     cfg,
		prov:    prov,
		auth:    token.NewAuthority([]byte(cfg.Auth.Secret), cfg.Auth.TokenTTL),
		states:  token.NewStateCodec([]byte(cfg.Auth.Secret)),
		logger:  logger,
		metrics: newMetrics(prometheus.DefaultRegisterer),
	}, nil
}

// Register mounts the gateway routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/shell", s.handleShell)
	e.POST("/ai-stream", s.handleStream)
	e.POST("/ai-followup", s.handleFollowUp)
}

// Run configures an echo instance the usual way and serves until the
// listener fails.
func Run(cfg *config.Config) error {
	s, err := New(cfg)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.Register(e)

	return e.Start(cfg.Server.Address)
}

// ShellRequest is the HTTP form of the hook entry point, for hosts living in
// another process.
type ShellRequest struct {
	Query   string                `json:"q"`
	Lang    string                `json:"lang"`
	Results []answer.SearchResult `json:"results"`
}

func (s *Server) handleShell(c echo.Context) error {
	var req ShellRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing query")
	}
	shell, err := s.Shell(req.Results, req.Query, req.Lang)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, shell)
}

// StreamRequest opens an answer stream. The context travels with the request
// and is re-fingerprinted server-side; the token must match.
type StreamRequest struct {
	Token   string                  `json:"tk"`
	Query   string                  `json:"q"`
	Lang    string                  `json:"lang"`
	Context answer.GroundingContext `json:"context"`
}

func (s *Server) handleStream(c echo.Context) error {
	var req StreamRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing query")
	}

	// Reject before the response commits to SSE framing; the session
	// re-verifies as part of its own lifecycle.
	subject, err := s.auth.Verify(req.Token)
	if err != nil || subject != answer.Fingerprint(req.Query, req.Context) {
		s.metrics.rejected.WithLabelValues("unauthorized").Inc()
		return echo.NewHTTPError(http.StatusForbidden, "invalid stream token")
	}

	params := answer.Params{
		Query:       req.Query,
		Lang:        req.Lang,
		Context:     req.Context,
		Token:       req.Token,
		MaxTokens:   s.cfg.LLM.MaxTokens,
		Temperature: s.cfg.LLM.Temperature,
	}
	if s.cfg.Answer.Interactive {
		params.RenewState = func(generated string) (string, error) {
			return s.states.Encode(token.ConversationState{
				Query:      req.Query,
				Lang:       req.Lang,
				Turn:       1,
				PrevAnswer: generated,
				Context:    req.Context,
			})
		}
	}
	sess := answer.NewSession(s.prov, s.auth, params, s.logger)
	return s.stream(c, sess)
}

// FollowUpRequest continues a conversation from client-carried state.
type FollowUpRequest struct {
	State   string `json:"state"`
	Message string `json:"message"`
}

func (s *Server) handleFollowUp(c echo.Context) error {
	var req FollowUpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing message")
	}
	st, err := s.states.Decode(req.State)
	if err != nil {
		if errors.Is(err, token.ErrStateInvalid) {
			s.metrics.rejected.WithLabelValues("state_invalid").Inc()
			return echo.NewHTTPError(http.StatusForbidden, "conversation state rejected")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// The carried context goes straight into a new session: no search
	// re-run and no loopback hop through our own stream endpoint.
	params := answer.Params{
		Query:       req.Message,
		Lang:        st.Lang,
		Context:     st.Context,
		PrevAnswer:  st.PrevAnswer,
		Turn:        st.Turn,
		MaxTokens:   s.cfg.LLM.MaxTokens,
		Temperature: s.cfg.LLM.Temperature,
		RenewState: func(generated string) (string, error) {
			return s.states.Encode(token.ConversationState{
				Query:      st.Query,
				Lang:       st.Lang,
				Turn:       st.Turn + 1,
				PrevAnswer: appendTranscript(st.PrevAnswer, req.Message, generated),
				Context:    st.Context,
			})
		},
	}
	sess := answer.NewFollowUp(s.prov, params, s.logger)
	return s.stream(c, sess)
}

// appendTranscript grows the carried transcript the way the original result
// page did: continuations join the prior text, questions become Q/A pairs.
func appendTranscript(prev, message, generated string) string {
	if message == answer.ContinueQuery {
		return prev + "\n\n" + generated
	}
	return prev + "\n\nQ: " + message + "\nA: " + generated
}

// stream drains a session into the response. Client disconnect cancels the
// request context, which tears the upstream connection down inside the
// session; no terminal event is written in that case.
func (s *Server) stream(c echo.Context, sess *answer.Session) error {
	start := time.Now()
	events := sess.Run(c.Request().Context())
	writeSSEHeaders(c.Response())
	for ev := range events {
		if err := writeEvent(c.Response(), ev); err != nil {
			// Client is gone; keep draining so the session observes
			// cancellation and closes the channel.
			break
		}
	}
	for range events {
	}

	outcome := sess.State().String()
	s.metrics.sessions.WithLabelValues(outcome).Inc()
	s.metrics.duration.WithLabelValues(string(s.prov.Kind())).Observe(time.Since(start).Seconds())
	s.logger.Printf("session %s %s after %s", sess.ID(), outcome, time.Since(start).Round(time.Millisecond))
	return nil
}
