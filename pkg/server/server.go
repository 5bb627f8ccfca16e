package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parley-chat/parley/pkg/auth"
	"github.com/parley-chat/parley/pkg/broker"
	"github.com/parley-chat/parley/pkg/database"
)

var (
	errorLog = log.New(os.Stderr, "ERROR: ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
)

// SetLoggers replaces the package loggers
func SetLoggers(errLog, dbgLog *log.Logger) {
	if errLog != nil {
		errorLog = errLog
	}
	if dbgLog != nil {
		debugLog = dbgLog
	}
}

// EnableDebugLogging turns on debug output for the server and broker packages
func EnableDebugLogging() {
	dbg := log.New(os.Stderr, "DEBUG: ", log.LstdFlags)
	SetLoggers(nil, dbg)
	broker.SetLoggers(nil, dbg)
}

// Server wires the HTTP surface to the broker and the database
type Server struct {
	db       *database.DB
	broker   *broker.Broker
	factory  *broker.Factory
	tokens   *auth.TokenIssuer
	config   TOMLConfig
	httpSrv  *http.Server
	shutdown chan struct{}
}

// NewServer creates a server instance. metrics may be nil (tests run without
// prometheus registration).
func NewServer(dbPath string, config TOMLConfig, metrics *broker.Metrics) (*Server, error) {
	secret, err := config.JWTSecretBytes()
	if err != nil {
		return nil, err
	}

	db, err := database.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ttl := time.Duration(config.Limits.TokenTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	tokens := auth.NewTokenIssuer(secret, ttl)

	opts := []broker.Option{broker.WithQueueSize(config.Limits.OutboundQueueSize)}
	if metrics != nil {
		opts = append(opts, broker.WithMetrics(metrics))
	}
	b := broker.New(db, opts...)

	checkInterval := time.Duration(config.Limits.TokenCheckIntervalSeconds) * time.Second
	if checkInterval <= 0 {
		checkInterval = broker.DefaultCheckInterval
	}
	factory := broker.NewFactory(b, tokens, broker.WithCheckInterval(checkInterval))

	return &Server{
		db:       db,
		broker:   b,
		factory:  factory,
		tokens:   tokens,
		config:   config,
		shutdown: make(chan struct{}),
	}, nil
}

// Router builds the HTTP route table
func (s *Server) Router() *httprouter.Router {
	router := httprouter.New()

	router.GET("/api/health", s.handleHealth)
	router.POST("/api/register", s.handleRegister)
	router.POST("/api/login", s.handleLogin)

	router.GET("/api/contacts", s.authed(s.handleContacts))
	router.POST("/api/contacts", s.authed(s.handleAddContact))
	router.GET("/api/conversations", s.authed(s.handleConversations))
	router.GET("/api/conversations/:uid/messages", s.authed(s.handleConversationMessages))
	router.POST("/api/groups", s.authed(s.handleCreateGroup))
	router.GET("/api/groups", s.authed(s.handleGroups))
	router.GET("/api/groups/:id/messages", s.authed(s.handleGroupMessages))
	router.GET("/api/attachments/:id", s.authed(s.handleAttachment))

	router.GET("/ws", s.HandleWebSocket)
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	return router
}

// Start launches the broker loop and the HTTP listener
func (s *Server) Start() error {
	go s.broker.Run()

	addr := fmt.Sprintf(":%d", s.config.Server.HTTPPort)
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errorLog.Printf("HTTP server error: %v", err)
		}
	}()

	log.Printf("HTTP server listening on %s", addr)
	return nil
}

// Stop gracefully stops the HTTP listener, the broker, and the database
func (s *Server) Stop() error {
	close(s.shutdown)

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			errorLog.Printf("HTTP shutdown error: %v", err)
		}
	}

	s.broker.Stop()
	return s.db.Close()
}
