// Command duel2048 hosts 2048 games in which an opponent agent picks where
// every new tile spawns.
//
// It supports four commands:
//  1. "server" (default) – HTTP server exposing REST API, WebSocket, metrics and an /mcp endpoint
//  2. "stdio-mcp" – MCP stdio server that reuses a running API or starts an internal one
//  3. "play" – terminal client for a single game
//  4. "agent" – serves the expectimax solver to remote servers over net/rpc
//
// Settings come from duel2048.yaml, DUEL2048_* environment variables and
// flags. Ngrok tunneling is available for easy external access during
// development.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/duel2048/api"
	"github.com/wricardo/duel2048/game/agent"
	"github.com/wricardo/duel2048/game/config"
	"github.com/wricardo/duel2048/game/service"
	"github.com/wricardo/duel2048/game/session"
	"github.com/wricardo/duel2048/game/store"
	"github.com/wricardo/duel2048/logger"
	"github.com/wricardo/duel2048/monitor"
	"github.com/wricardo/duel2048/settings"
	"github.com/wricardo/duel2048/transport/mcp"
	"github.com/wricardo/duel2048/transport/tui"
	"github.com/wricardo/duel2048/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Duel 2048 Server"
)

const (
	metricsNamespace = "duel2048"
	externalAPI      = "http://localhost:8080"
	cleanupInterval  = time.Hour
	syncInterval     = 5 * time.Second
)

// flagKeys maps flags to the settings they override
var flagKeys = map[string]string{
	"host":       "server.host",
	"port":       "server.port",
	"config-dir": "variants.dir",
	"storage":    "storage.driver",
	"debug":      "log.debug",
	"agents":     "agents.mode",
	"max-depth":  "agents.max_depth",
}

func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "duel2048",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "settings", Usage: "directory searched for duel2048.yaml", Value: "."},
			&cli.StringFlag{Name: "host", Usage: "HTTP server host"},
			&cli.IntFlag{Name: "port", Usage: "HTTP server port"},
			&cli.StringFlag{Name: "config-dir", Usage: "directory containing game variants", Sources: cli.EnvVars("CONFIG_DIR")},
			&cli.StringFlag{Name: "storage", Usage: "session storage: memory, file, sqlite or postgres"},
			&cli.StringFlag{Name: "agents", Usage: "agent mode: local or remote"},
			&cli.IntFlag{Name: "max-depth", Usage: "cap on the expectimax search depth (0 = adaptive)"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		DefaultCommand: "server",
		Commands: []*cli.Command{
			serverCommand(),
			stdioMCPCommand(),
			playCommand(),
			agentCommand(),
		},
		After: func(ctx context.Context, cmd *cli.Command) error {
			logger.Sync()
			return nil
		},
	}
}

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"http"},
		Usage:   "run the HTTP server with API, WebSocket, metrics and MCP endpoint",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "ngrok", Usage: "enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain (optional)", Sources: cli.EnvVars("NGROK_DOMAIN")},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := setup(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(s, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			var tunnel *tunnelOptions
			if cmd.Bool("ngrok") {
				tunnel = &tunnelOptions{authToken: cmd.String("ngrok-auth"), domain: cmd.String("ngrok-domain")}
			}
			return runHTTPServer(ctx, a, tunnel)
		},
	}
}

func stdioMCPCommand() *cli.Command {
	return &cli.Command{
		Name:    "stdio-mcp",
		Aliases: []string{"mcp-stdio", "mcp"},
		Usage:   "run an MCP stdio server backed by a running or internal HTTP API",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := setup(cmd)
			if err != nil {
				return err
			}
			return runStdioMCP(ctx, s)
		},
	}
}

func playCommand() *cli.Command {
	return &cli.Command{
		Name:  "play",
		Usage: "play one game in the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session", Usage: "session to resume or create (4 hex chars)"},
			&cli.StringFlag{Name: "variant", Usage: "variant of a new session", Value: config.ClassicID},
			&cli.BoolFlag{Name: "player-ai", Usage: "let the player agent move"},
			&cli.BoolFlag{Name: "opponent-ai", Usage: "let the opponent agent place tiles", Value: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := setup(cmd)
			if err != nil {
				return err
			}
			return runPlay(ctx, s, playOptions{
				sessionID:  cmd.String("session"),
				variant:    cmd.String("variant"),
				playerAI:   cmd.Bool("player-ai"),
				opponentAI: cmd.Bool("opponent-ai"),
			})
		},
	}
}

func agentCommand() *cli.Command {
	return &cli.Command{
		Name:  "agent",
		Usage: "serve the expectimax solver over net/rpc",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "listen address", Value: ":9091"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := setup(cmd)
			if err != nil {
				return err
			}
			l, err := net.Listen("tcp", cmd.String("listen"))
			if err != nil {
				return fmt.Errorf("failed to listen: %w", err)
			}
			return agent.Serve(ctx, l, agent.NewExpectimax(s.Agents.MaxDepth))
		},
	}
}

// setup loads the settings, applying the flags that were set, and
// initializes logging
func setup(cmd *cli.Command) (*settings.Settings, error) {
	overrides := make(map[string]any)
	for flag, key := range flagKeys {
		if cmd.IsSet(flag) {
			overrides[key] = cmd.Value(flag)
		}
	}
	s, err := settings.Load(overrides, cmd.String("settings"))
	if err != nil {
		return nil, err
	}
	logger.Init(s.Log.Debug)
	logger.Log.Infow("Starting "+AppName, "version", Version, "command", cmd.Name)
	return s, nil
}

// app holds the services shared by the commands
type app struct {
	settings *settings.Settings
	configs  *config.Manager
	sessions *session.Manager
	store    session.Persistence
	games    service.GameService
	hub      *websocket.Hub
	registry *prometheus.Registry
	workers  []io.Closer
}

// newApp wires the config and session managers, the game service and the
// WebSocket hub. extra adds renderers to every game.
func newApp(s *settings.Settings, extra func(sessionID string) []session.Renderer) (*app, error) {
	configs, err := config.NewManager(s.Variants.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	persistence, err := newPersistence(s.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create session persistence: %w", err)
	}

	a := &app{
		settings: s,
		configs:  configs,
		store:    persistence,
		registry: prometheus.NewRegistry(),
	}
	metrics := monitor.NewMetrics(metricsNamespace, a.registry)

	a.sessions = session.NewManager(session.ManagerConfig{
		Persistence: persistence,
		Agents:      a.agentFactory(),
		Renderers: func(sessionID string) []session.Renderer {
			renderers := []session.Renderer{a.hub.Renderer(sessionID)}
			if extra != nil {
				renderers = append(renderers, extra(sessionID)...)
			}
			return renderers
		},
		Metrics: metrics,
	})
	a.games = service.NewGameService(a.sessions, configs)
	a.hub = websocket.NewHub(a.games)
	return a, nil
}

func newPersistence(s settings.StorageSettings) (session.Persistence, error) {
	switch s.Driver {
	case settings.DriverMemory:
		return session.NewMemoryPersistence(), nil
	case settings.DriverSQLite:
		return store.NewSQLite(s.Path)
	case settings.DriverPostgres:
		return store.NewPostgres(s.DSN)
	default:
		return session.NewFilePersistence(s.Path)
	}
}

// agentFactory returns the workers of every new game
func (a *app) agentFactory() func() (agent.Worker, agent.Worker) {
	if a.settings.Agents.Mode == settings.AgentsRemote {
		player := agent.NewRemoteWorker(a.settings.Agents.PlayerAddr)
		opponent := agent.NewRemoteWorker(a.settings.Agents.OpponentAddr)
		a.workers = append(a.workers, player, opponent)
		return func() (agent.Worker, agent.Worker) {
			return player, opponent
		}
	}
	solver := agent.NewExpectimax(a.settings.Agents.MaxDepth)
	return func() (agent.Worker, agent.Worker) {
		return agent.NewLocalWorker(solver), agent.NewLocalWorker(solver)
	}
}

// handler mounts the API, the metrics endpoint and the /mcp endpoint
func (a *app) handler(baseURL string) http.Handler {
	apiServer := api.NewServer(a.games, a.hub)
	apiServer.Handle(a.settings.Server.MetricsPath, monitor.Handler(a.registry))

	mcpClient := mcp.NewClient(baseURL)
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})
	return mainRouter
}

// Close stops every game and releases the storage and agent connections
func (a *app) Close() error {
	err := a.sessions.Close()
	for _, w := range a.workers {
		w.Close()
	}
	if c, ok := a.store.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}

type tunnelOptions struct {
	authToken string
	domain    string
}

// runHTTPServer serves the app until ctx is done. Persisted sessions are
// resumed first; stale ones are evicted hourly.
func runHTTPServer(ctx context.Context, a *app, tunnel *tunnelOptions) error {
	if err := a.sessions.LoadPersistedSessions(); err != nil {
		logger.Log.Warnw("Failed to load persisted sessions", "error", err)
	}

	addr := a.settings.Server.Addr()
	handler := a.handler("http://" + addr)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		logger.Log.Infow("HTTP server listening",
			"addr", addr,
			"api", "http://"+addr+"/api",
			"websocket", "ws://"+addr+"/ws?session=<session_id>",
			"mcp", "http://"+addr+"/mcp",
			"metrics", "http://"+addr+a.settings.Server.MetricsPath,
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Warnw("HTTP server shutdown error", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		maxAge := time.Duration(a.settings.Sessions.MaxIdleHours) * time.Hour
		sessionCleanupRoutine(ctx, a.sessions, cleanupInterval, maxAge)
		return nil
	})
	g.Go(func() error {
		storageSyncRoutine(ctx, a.sessions, a.store, syncInterval)
		return nil
	})
	if tunnel != nil {
		g.Go(func() error {
			runTunnel(ctx, handler, *tunnel)
			return nil
		})
	}

	err := g.Wait()
	if saveErr := a.sessions.SaveAllSessions(); saveErr != nil {
		logger.Log.Warnw("Failed to save sessions", "error", saveErr)
	}
	logger.Log.Info("Server stopped")
	return err
}

// runTunnel serves handler through ngrok until ctx is done
func runTunnel(ctx context.Context, handler http.Handler, opts tunnelOptions) {
	if opts.authToken == "" {
		logger.Log.Warn("Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	logger.Log.Info("Starting ngrok tunnel...")

	var endpoint ngrokConfig.Tunnel
	if opts.domain != "" {
		endpoint = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(opts.domain))
		logger.Log.Infow("Using custom ngrok domain", "domain", opts.domain)
	} else {
		endpoint = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, endpoint, ngrok.WithAuthtoken(opts.authToken))
	if err != nil {
		logger.Log.Warnw("Failed to start ngrok tunnel", "error", err)
		return
	}
	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Log.Warnw("Failed to close ngrok tunnel", "error", err)
		}
	}()

	ngrokURL := tun.URL()
	logger.Log.Infow("🚀 Ngrok tunnel established",
		"url", ngrokURL,
		"api", ngrokURL+"/api",
		"websocket", ngrokURL+"/ws?session=<session_id>",
		"mcp", ngrokURL+"/mcp",
	)

	if err := http.Serve(tun, handler); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		logger.Log.Warnw("Ngrok server error", "error", err)
	}
	logger.Log.Info("Ngrok tunnel closed")
}

// sessionCleanupRoutine periodically removes sessions that have not been
// accessed within maxAge
func sessionCleanupRoutine(ctx context.Context, manager *session.Manager, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := manager.CleanupExpiredSessions(maxAge); removed > 0 {
				logger.Log.Infow("Cleaned up expired sessions", "count", removed)
			}
		}
	}
}

// storageSyncRoutine drops running sessions whose stored record was removed
// behind the server's back, e.g. a deleted session file
func storageSyncRoutine(ctx context.Context, manager *session.Manager, persistence session.Persistence, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pruned := pruneOrphans(manager, persistence); pruned > 0 {
				logger.Log.Infow("Storage sync: pruned orphaned sessions", "count", pruned)
			}
		}
	}
}

func pruneOrphans(manager *session.Manager, persistence session.Persistence) int {
	pruned := 0
	for _, s := range manager.List() {
		if persistence.SessionExists(s.ID) {
			continue
		}
		if err := manager.DeleteFromMemory(s.ID); err == nil {
			pruned++
			logger.Log.Infow("Pruned session from memory", "session_id", s.ID)
		}
	}
	return pruned
}

// runStdioMCP runs an MCP stdio server. It reuses an API at
// http://localhost:8080 when one answers; otherwise it starts an internal
// API on a random loopback port.
func runStdioMCP(ctx context.Context, s *settings.Settings) error {
	baseURL := externalAPI
	logger.Log.Infow("Checking for external API server", "url", externalAPI)

	if !apiAvailable(externalAPI) {
		logger.Log.Info("No external API server found, starting internal HTTP server")

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		baseURL = "http://" + listener.Addr().String()

		a, err := newApp(s, nil)
		if err != nil {
			listener.Close()
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go a.hub.Run(ctx)

		httpServer := &http.Server{Handler: a.handler(baseURL)}
		go func() {
			if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
				logger.Log.Warnw("Internal HTTP server error", "error", err)
			}
		}()
		defer httpServer.Close()
		logger.Log.Infow("Internal HTTP server started for MCP stdio", "url", baseURL)
	} else {
		logger.Log.Infow("External API server found, using it for MCP", "url", externalAPI)
	}

	mcpClient := mcp.NewClient(baseURL)
	logger.Log.Info("MCP stdio server ready")
	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

func apiAvailable(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

type playOptions struct {
	sessionID  string
	variant    string
	playerAI   bool
	opponentAI bool
}

// runPlay opens the terminal client on one game
func runPlay(ctx context.Context, s *settings.Settings, opts playOptions) error {
	renderer := tui.NewRenderer()
	a, err := newApp(s, func(string) []session.Renderer {
		return []session.Renderer{renderer}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := openSession(a, opts)
	if err != nil {
		return err
	}
	if _, err := sess.Game.SetOpponentAI(ctx, opts.opponentAI); err != nil {
		if !errors.Is(err, session.ErrAgentsUnsupported) {
			return err
		}
		logger.Log.Warnw("Opponent agent disabled", "session_id", sess.ID, "grid_size", sess.Variant.Size)
	}
	if _, err := sess.Game.SetPlayerAI(ctx, opts.playerAI); err != nil {
		return err
	}

	logger.Log.Infow("Playing session", "session_id", sess.ID, "config", sess.ConfigName)
	_, err = tea.NewProgram(tui.NewModel(sess.Game, renderer), tea.WithContext(ctx), tea.WithAltScreen()).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func openSession(a *app, opts playOptions) (*service.Session, error) {
	variant, err := a.configs.LoadConfig(opts.variant)
	if err != nil {
		return nil, err
	}
	if opts.sessionID == "" {
		return a.sessions.Create("", opts.variant, variant)
	}
	return a.sessions.GetOrCreate(opts.sessionID, opts.variant, variant)
}
