package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"loanwatch/config"
	"loanwatch/internal/engine"
	"loanwatch/internal/favorites"
	"loanwatch/internal/metrics"
	"loanwatch/internal/refresher"
	"loanwatch/logger"
)

//go:embed templates/*.tmpl assets/*
var embeddedFS embed.FS

// App holds the collaborators the dashboard routes operate on.
type App struct {
	Refresher *refresher.Refresher
	Favorites *favorites.Store
	Engine    engine.Engine
}

// Server hosts the loan dashboard: the calculator page, its JSON API, the
// websocket feed and the operational views.
type Server struct {
	cfg               config.DashboardConfig
	log               *logger.Log
	refresher         *refresher.Refresher
	favorites         *favorites.Store
	engine            engine.Engine
	hub               *hub
	metricStore       *metricStore
	logStore          *logStore
	metricHandler     metrics.MetricHandlerID
	httpServer        *http.Server
	refreshIntervalMs int
	resourceSampler   *resourceSampler
}

// NewServer constructs a dashboard server when the dashboard feature is enabled.
// When the dashboard is disabled the returned server will be nil.
func NewServer(cfg config.DashboardConfig, log *logger.Log, app App) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if app.Refresher == nil || app.Favorites == nil {
		return nil, errors.New("dashboard requires a refresher and a favorites store")
	}

	cfg.Address = normalizeAddress(cfg.Address)
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Second
	}
	if cfg.LogHistory <= 0 {
		cfg.LogHistory = 200
	}
	if cfg.MetricsHistory <= 0 {
		cfg.MetricsHistory = 200
	}

	metricStore := newMetricStore(cfg.MetricsHistory)
	logStore := newLogStore(cfg.LogHistory)
	log.AddHook(logStore)

	if app.Engine.MinCollateralRatioPercent <= 0 {
		app.Engine = engine.New(0)
	}

	server := &Server{
		cfg:               cfg,
		log:               log,
		refresher:         app.Refresher,
		favorites:         app.Favorites,
		engine:            app.Engine,
		hub:               newHub(log),
		metricStore:       metricStore,
		logStore:          logStore,
		metricHandler:     metrics.RegisterMetricHandler(metricStore.handle),
		refreshIntervalMs: int(cfg.RefreshInterval / time.Millisecond),
		resourceSampler:   newResourceSampler(cfg.MetricsHistory, cfg.RefreshInterval, "/", log),
	}
	app.Refresher.Subscribe(server.hub)

	return server, nil
}

// Run starts the dashboard HTTP server and blocks until the provided context is
// cancelled or the underlying HTTP server exits with an error.
func (s *Server) Run(ctx context.Context, appName string) error {
	if s == nil {
		return nil
	}

	defer s.cleanup()

	router, err := s.buildRouter(appName)
	if err != nil {
		return err
	}

	s.resourceSampler.start(ctx)

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.WithComponent("dashboard").WithFields(logger.Fields{"address": s.cfg.Address}).Info("dashboard listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.hub.close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	s.logStore.close()
	s.resourceSampler.stop()
	s.hub.close()
}

// Address reports the network address the dashboard server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter(appName string) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	tmpl := template.Must(template.New("dashboard").ParseFS(embeddedFS, "templates/index.tmpl"))
	router.SetHTMLTemplate(tmpl)

	if assetsFS, err := fsSub("assets"); err == nil {
		router.StaticFS("/assets", http.FS(assetsFS))
	}

	router.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.tmpl", gin.H{
			"AppName":           appName,
			"Address":           s.refresher.Session().Address(),
			"Theme":             s.favorites.Theme(),
			"RefreshIntervalMs": s.refreshIntervalMs,
		})
	})

	api := router.Group("/api")
	api.GET("/position", s.handlePosition)
	api.POST("/position/refresh", s.handleRefresh)
	api.POST("/position/borrow", s.handleBorrow)
	api.POST("/price/refresh", s.handlePriceRefresh)
	api.GET("/calc", s.handleCalc)
	api.GET("/derive/:id", s.handleDerive)
	api.GET("/favorites", s.handleFavorites)
	api.POST("/favorites", s.handleAddFavorite)
	api.DELETE("/favorites/:address", s.handleRemoveFavorite)
	api.GET("/theme", s.handleTheme)
	api.PUT("/theme", s.handleSetTheme)

	api.GET("/metrics", func(c *gin.Context) {
		metricsSnapshot := s.metricStore.snapshot()
		if address := c.Query("address"); address != "" {
			metricsSnapshot = s.metricStore.byAddress(address)
		}
		payload := make([]gin.H, 0, len(metricsSnapshot))
		for _, m := range metricsSnapshot {
			payload = append(payload, gin.H{
				"timestamp": m.Timestamp.Format(time.RFC3339Nano),
				"component": m.Component,
				"name":      m.Name,
				"value":     m.Value,
				"type":      m.Type,
				"fields":    m.Fields,
			})
		}
		c.JSON(http.StatusOK, gin.H{"metrics": payload})
	})

	api.GET("/logs", func(c *gin.Context) {
		logsSnapshot := s.logStore.snapshot()
		if raw := c.Query("level"); raw != "" {
			level, err := logrus.ParseLevel(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			logsSnapshot = s.logStore.atLeast(level)
		}
		c.JSON(http.StatusOK, gin.H{"logs": logsSnapshot})
	})

	api.GET("/resources", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"resources": s.resourceSampler.snapshot()})
	})

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/ws", s.handleWebsocket)

	return router, nil
}

// handleWebsocket upgrades the request and primes the client with the
// current evaluation.
func (s *Server) handleWebsocket(c *gin.Context) {
	ev := s.refresher.Current()
	initial, err := json.Marshal(resultView(refresher.Result{
		Address:    s.refresher.Session().Address(),
		Outcome:    refresher.OutcomeSuccess,
		Evaluation: &ev,
	}))
	if err != nil {
		initial = nil
	}
	s.hub.serve(c.Writer, c.Request, initial)
}

func fsSub(path string) (fs.FS, error) {
	return fs.Sub(embeddedFS, path)
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
