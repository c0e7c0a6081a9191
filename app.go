// Package canvasserver wires the canvas agent into an HTTP server: shared
// state store, snapshot bus, plan engine, tool registry, turn coordinator,
// and the handlers that expose them.
package canvasserver

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"canvas_server/agent"
	"canvas_server/handlers"
	"canvas_server/llm"
	"canvas_server/records"
	"canvas_server/tracing"
)

// Server is the main canvas server instance. Create one with New(),
// optionally register extra managed tools, then call Start().
type Server struct {
	host       string
	port       int
	configFile string
	staticPath string

	modelSpec    any
	modelSet     bool
	systemPrompt string
	recordsURL   string
	sessionTTL   time.Duration

	extraTools []agent.Tool

	store *agent.StateStore
	bus   *agent.SnapshotBus
	srv   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithPort sets the listen port (default 8000).
func WithPort(port int) Option {
	return func(s *Server) { s.port = port }
}

// WithHost sets the listen host (default "0.0.0.0").
func WithHost(host string) Option {
	return func(s *Server) { s.host = host }
}

// WithConfigFile sets the path to a canvas.yaml config file.
func WithConfigFile(path string) Option {
	return func(s *Server) { s.configFile = path }
}

// WithModel sets the model spec (string like "ollama:llama3.1" or a map
// with provider/model/api_key). Overrides the config file.
func WithModel(spec any) Option {
	return func(s *Server) {
		s.modelSpec = spec
		s.modelSet = true
	}
}

// WithRecordsURL sets the document store bridge URL. Empty disables the
// /docs/ endpoints.
func WithRecordsURL(url string) Option {
	return func(s *Server) { s.recordsURL = url }
}

// WithSessionTTL sets how long idle sessions are retained.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Server) { s.sessionTTL = ttl }
}

// WithStaticPath sets the directory for static file serving with SPA fallback.
func WithStaticPath(path string) Option {
	return func(s *Server) { s.staticPath = path }
}

// WithTool registers an extra managed tool before Start().
func WithTool(t agent.Tool) Option {
	return func(s *Server) { s.extraTools = append(s.extraTools, t) }
}

// New creates a new Server with the given options.
func New(opts ...Option) *Server {
	s := &Server{
		host:       "0.0.0.0",
		port:       8000,
		staticPath: "static",
		modelSpec:  "ollama:llama3.1",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start initializes dependencies, builds routes, and runs the HTTP server.
// It blocks until the server is shut down via signal or Shutdown().
func (s *Server) Start() error {
	if s.configFile != "" {
		log.Printf("Loading config from %s", s.configFile)
		if err := s.applyConfigFile(s.configFile); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	client, model, err := llm.Resolve(s.modelSpec)
	if err != nil {
		return fmt.Errorf("failed to resolve model: %w", err)
	}

	if s.sessionTTL > 0 {
		s.store = agent.NewStateStoreTTL(s.sessionTTL)
	} else {
		s.store = agent.NewStateStore()
	}
	s.bus = agent.NewSnapshotBus()

	engine := agent.NewPlanEngine(s.store, s.bus)

	registry := agent.NewRegistry()
	for _, t := range agent.NewPlanTools(engine) {
		registry.RegisterManaged(t)
	}
	for _, t := range agent.NewClientTools() {
		registry.RegisterClient(t)
	}
	for _, t := range s.extraTools {
		registry.RegisterManaged(t)
		log.Printf("  registered tool %q", t.Name())
	}

	prompt := s.systemPrompt
	if prompt == "" {
		prompt = agent.DefaultSystemPrompt
	}

	traces := tracing.NewStore(100)

	coordinator := &agent.Coordinator{
		LLM:          client,
		Model:        model,
		SystemPrompt: prompt,
		Registry:     registry,
		Store:        s.store,
		Bus:          s.bus,
		Hooks: []agent.Hook{
			agent.NewGroundingHook(s.store),
			tracing.NewHook(),
			agent.LogHook{},
		},
	}

	var docs records.Store
	if s.recordsURL != "" {
		docs = records.NewHTTPStore(s.recordsURL)
	}

	deps := &handlers.Deps{
		Coordinator: coordinator,
		Store:       s.store,
		Bus:         s.bus,
		Registry:    registry,
		Records:     docs,
		Traces:      traces,
	}

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)

	// Static file serving with SPA fallback
	if info, err := os.Stat(s.staticPath); err == nil && info.IsDir() {
		log.Printf("Serving static files from %s", s.staticPath)
		fs := http.FileServer(http.Dir(s.staticPath))
		staticPath := s.staticPath
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			path := staticPath + r.URL.Path
			if _, err := os.Stat(path); os.IsNotExist(err) && r.URL.Path != "/" {
				http.ServeFile(w, r, staticPath+"/index.html")
				return
			}
			fs.ServeHTTP(w, r)
		})
	}

	handler := corsMiddleware(mux)

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // disable for SSE and websockets
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on signal
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.srv.Shutdown(ctx)
	}()

	log.Printf("canvas_server starting on %s (model=%s, tools=%d)", addr, model, len(registry.Catalog()))

	if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server and stops session eviction.
func (s *Server) Shutdown() error {
	if s.store != nil {
		s.store.Close()
	}
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
