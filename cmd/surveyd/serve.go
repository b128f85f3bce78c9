package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ormasoftchile/surveyd/pkg/config"
	"github.com/ormasoftchile/surveyd/pkg/engine"
	"github.com/ormasoftchile/surveyd/pkg/eval"
	"github.com/ormasoftchile/surveyd/pkg/logging"
	"github.com/ormasoftchile/surveyd/pkg/mcpserver"
	"github.com/ormasoftchile/surveyd/pkg/serve"
	"github.com/ormasoftchile/surveyd/pkg/service"
	"github.com/ormasoftchile/surveyd/pkg/session"
	"github.com/ormasoftchile/surveyd/pkg/survey"
)

// --- wiring ---

// closers releases resources opened while building a service.
type closers []io.Closer

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		_ = c[i].Close()
	}
}

// buildService wires the survey source, session store and evaluator named by
// cfg. The returned closers must be closed when the service is done.
func buildService(ctx context.Context, cfg *config.Config, log *zap.Logger) (*service.Service, closers, error) {
	var cl closers

	var src survey.Source
	switch {
	case cfg.Surveys.SQLite != "":
		db, err := survey.OpenSQLiteSource(cfg.Surveys.SQLite)
		if err != nil {
			return nil, nil, err
		}
		cl = append(cl, db)
		src = db
	default:
		src = survey.DirSource{Dir: cfg.Surveys.Dir}
	}

	var store session.Store
	switch cfg.Sessions.Backend {
	case "redis":
		rs, err := session.NewRedisStore(ctx, cfg.Sessions.RedisURL, cfg.Sessions.TTL)
		if err != nil {
			cl.Close()
			return nil, nil, err
		}
		cl = append(cl, rs)
		store = rs
	default:
		store = session.NewMemoryStore()
	}

	eng := engine.New(src, eval.ExprEvaluator{Dir: cfg.Eval.Dir})
	reg := session.NewRegistry(store, session.WithLogger(log))
	return service.New(eng, reg), cl, nil
}

// healthCheck returns the store's Ping when it has one.
func healthCheck(store session.Store) func(context.Context) error {
	if p, ok := store.(session.Pinger); ok {
		return p.Ping
	}
	return nil
}

// logSurveys reports the definitions a listing source can serve.
func logSurveys(ctx context.Context, log *zap.Logger, src survey.Source) {
	l, ok := src.(survey.Lister)
	if !ok {
		return
	}
	ids, err := l.List(ctx)
	if err != nil {
		log.Warn("list surveys", zap.Error(err))
		return
	}
	log.Info("surveys available", zap.Int("count", len(ids)), zap.Strings("ids", ids))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// --- serve ---

var (
	serveAddr    string
	serveSurveys string
	serveSQLite  string
	serveRedis   string
	serveOrigins string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the survey HTTP server",
	Long: `Start the HTTP server. Endpoints:

  GET /newsession?surveyid=ID
  GET /nextquestion?sessionid=TOKEN
  GET /updateanswer?sessionid=TOKEN&answer=QUESTION:VALUE
  GET /delanswer?sessionid=TOKEN&questionid=QUESTION
  GET /analyse?sessionid=TOKEN
  GET /health, GET /metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func applyServeFlags(cfg *config.Config) error {
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	if serveSurveys != "" {
		cfg.Surveys = config.SurveyConfig{Dir: serveSurveys}
	}
	if serveSQLite != "" {
		cfg.Surveys = config.SurveyConfig{SQLite: serveSQLite}
	}
	if serveRedis != "" {
		cfg.Sessions.Backend = "redis"
		cfg.Sessions.RedisURL = serveRedis
	}
	if serveOrigins != "" {
		cfg.CORS.Origins = splitOrigins(serveOrigins)
	}
	return cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyServeFlags(cfg); err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signalContext()
	defer stop()

	svc, cl, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cl.Close()

	log.Info("starting surveyd",
		zap.String("version", version),
		zap.String("surveys", cfg.Surveys.Dir+cfg.Surveys.SQLite),
		zap.String("sessions", cfg.Sessions.Backend))
	logSurveys(ctx, log, svc.Engine.Source)

	srv := serve.New(svc, serve.Options{
		Logger:         log,
		AllowedOrigins: cfg.CORS.Origins,
		Health:         healthCheck(svc.Registry.Store()),
	})
	return srv.ListenAndServe(ctx, cfg.Addr)
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve survey tools over MCP (stdio)",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// stdout carries the protocol; logs go to stderr only.
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	svc, cl, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cl.Close()
	return mcpserver.ServeStdio(mcpserver.NewServer(version, svc))
}

// --- import ---

var importSQLite string

var importCmd = &cobra.Command{
	Use:   "import [survey files...]",
	Short: "Validate survey definitions and store them in a SQLite database",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	db, err := survey.OpenSQLiteSource(importSQLite)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	for _, path := range args {
		s, errs := survey.ValidateFile(path)
		if survey.HasErrors(errs) {
			for _, e := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "  [%s] %s %s\n", e.Phase, e.Path, e.Message)
			}
			return fmt.Errorf("%s: validation failed", path)
		}
		format, err := survey.FormatOf(path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if err := db.Put(ctx, s.ID, data, format); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ imported %s from %s (%d questions)\n", s.ID, filepath.Base(path), s.Len())
	}
	return nil
}
