// Package serve exposes the survey service over HTTP. All endpoints are GET
// with query parameters; question responses are the JSON array of question
// records and carry the new cursor in the X-Survey-Position header.
package serve

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ormasoftchile/surveyd/pkg/engine"
	"github.com/ormasoftchile/surveyd/pkg/logging"
	"github.com/ormasoftchile/surveyd/pkg/service"
	"github.com/ormasoftchile/surveyd/pkg/session"
)

// PositionHeader carries the session cursor after a navigation call.
const PositionHeader = "X-Survey-Position"

// Options configures a Server.
type Options struct {
	Logger         *zap.Logger
	AllowedOrigins []string             // empty or "*" allows any origin
	Registry       *prometheus.Registry // nil creates a private registry

	// Health, when set, is called by /health; an error reports 503.
	Health func(ctx context.Context) error
}

// Server is the HTTP surface over a service.Service.
type Server struct {
	svc     *service.Service
	log     *zap.Logger
	metrics *Metrics
	reg     *prometheus.Registry
	health  func(ctx context.Context) error
	router  *gin.Engine
}

// New builds the router.
func New(svc *service.Service, opts Options) *Server {
	log := logging.OrNop(opts.Logger)
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &Server{
		svc:     svc,
		log:     log,
		metrics: NewMetrics(reg),
		reg:     reg,
		health:  opts.Health,
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestID(), accessLog(log, s.metrics), cors(opts.AllowedOrigins))
	s.setupRoutes(router)
	s.router = router
	return s
}

func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})))

	router.GET("/newsession", s.handleNewSession())
	router.GET("/nextquestion", s.handleNextQuestion())
	router.GET("/updateanswer", s.handleUpdateAnswer())
	router.GET("/delanswer", s.handleDelAnswer())
	router.GET("/analyse", s.handleAnalyse())
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// ─── Handlers ──────────────────────────────────────────────────────────

func (s *Server) handleHealth(c *gin.Context) {
	if s.health != nil {
		if err := s.health(c.Request.Context()); err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleNewSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		surveyID := c.Query("surveyid")
		c.Set(surveyKey, surveyID)
		res := s.svc.NewSession(c.Request.Context(), surveyID)
		if !res.OK() {
			writeError(c, res)
			return
		}
		s.metrics.SessionsCreated.Inc()
		token, _ := res.Payload.(string)
		c.Header(PositionHeader, strconv.Itoa(res.Position))
		c.String(http.StatusOK, token)
	}
}

func (s *Server) handleNextQuestion() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bindToken(c)
		s.writeResult(c, s.svc.Next(c.Request.Context(), token))
	}
}

func (s *Server) handleUpdateAnswer() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bindToken(c)
		s.writeResult(c, s.svc.Answer(c.Request.Context(), token, c.Query("answer")))
	}
}

func (s *Server) handleDelAnswer() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bindToken(c)
		s.writeResult(c, s.svc.Delete(c.Request.Context(), token, c.Query("questionid")))
	}
}

func (s *Server) handleAnalyse() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bindToken(c)
		res := s.svc.Analyse(c.Request.Context(), token)
		if res.OK() {
			s.metrics.Completions.Inc()
		}
		s.writeResult(c, res)
	}
}

func bindToken(c *gin.Context) string {
	token := c.Query("sessionid")
	c.Set(surveyKey, session.ParseSurveyID(token))
	return token
}

func (s *Server) writeResult(c *gin.Context, res engine.Result) {
	c.Header(PositionHeader, strconv.Itoa(res.Position))
	if !res.OK() {
		if res.StatusCode == engine.StatusUnresolvedBranch {
			s.metrics.UnresolvedBranches.Inc()
		}
		writeError(c, res)
		return
	}
	c.JSON(http.StatusOK, res.Payload)
}

func writeError(c *gin.Context, res engine.Result) {
	c.JSON(res.StatusCode, gin.H{"status": res.StatusText, "position": res.Position})
}
