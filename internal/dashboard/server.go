package dashboard

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ratewatch/config"
	"ratewatch/internal/directory"
	"ratewatch/internal/feed"
	"ratewatch/internal/metrics"
	"ratewatch/internal/poller"
	"ratewatch/logger"
)

//go:embed templates/*.tmpl assets/*
var embeddedFS embed.FS

// Server hosts the Gin-powered rate dashboard: the list and detail screens,
// their JSON refresh endpoints and the observability APIs.
type Server struct {
	cfg     config.DashboardConfig
	pollCfg config.PollerConfig
	log     *logger.Log

	cache     *feed.Cache
	scheduler *poller.Scheduler
	directory *directory.Directory

	metricStore       *metricStore
	logStore          *logStore
	metricHandler     metrics.MetricHandlerID
	httpServer        *http.Server
	refreshIntervalMs int
	resourceSampler   *resourceSampler
}

// NewServer constructs a dashboard server when the dashboard feature is enabled.
// When the dashboard is disabled the returned server will be nil.
func NewServer(cfg config.DashboardConfig, pollCfg config.PollerConfig, cache *feed.Cache, sched *poller.Scheduler, dir *directory.Directory, log *logger.Log) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cfg.Address = normalizeAddress(cfg.Address)

	if cfg.RefreshIntervalMs <= 0 {
		cfg.RefreshIntervalMs = int(time.Second / time.Millisecond)
	}

	if cfg.LogHistory <= 0 {
		cfg.LogHistory = 200
	}

	if cfg.MetricsHistory <= 0 {
		cfg.MetricsHistory = 200
	}

	metricStore := newMetricStore(cfg.MetricsHistory)
	handlerID := metrics.RegisterMetricHandler(metricStore.handle)

	logStore := newLogStore(cfg.LogHistory)
	log.AddHook(logStore)

	sampler := newResourceSampler(cfg.MetricsHistory, 5*time.Second, "/", log)

	server := &Server{
		cfg:               cfg,
		pollCfg:           pollCfg,
		log:               log,
		cache:             cache,
		scheduler:         sched,
		directory:         dir,
		metricStore:       metricStore,
		logStore:          logStore,
		metricHandler:     handlerID,
		refreshIntervalMs: cfg.RefreshIntervalMs,
		resourceSampler:   sampler,
	}

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

	if s.resourceSampler != nil {
		s.resourceSampler.start(ctx)
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	if s.logStore != nil {
		s.logStore.close()
	}
	if s.resourceSampler != nil {
		s.resourceSampler.stop()
	}
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

	tmpl := template.Must(template.New("dashboard").Funcs(template.FuncMap{
		"raw": func(s string) template.HTML { return template.HTML(s) },
	}).ParseFS(embeddedFS, "templates/*.tmpl"))
	router.SetHTMLTemplate(tmpl)

	if assetsFS, err := fsSub("assets"); err == nil {
		router.StaticFS("/assets", http.FS(assetsFS))
	}

	router.GET("/", func(c *gin.Context) {
		query := c.Query("q")
		s.activateList(c.Request.Context())
		c.HTML(http.StatusOK, "index.tmpl", gin.H{
			"AppName":           appName,
			"Query":             query,
			"RefreshIntervalMs": s.refreshIntervalMs,
			"View":              s.listView(query),
		})
	})

	router.GET("/instruments/:id", func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.Redirect(http.StatusFound, "/")
			return
		}
		s.activateDetail(c.Request.Context(), id)
		c.HTML(http.StatusOK, "detail.tmpl", gin.H{
			"AppName":           appName,
			"RefreshIntervalMs": s.refreshIntervalMs,
			"View":              s.detailView(id),
		})
	})

	router.GET("/api/rates", func(c *gin.Context) {
		s.activateList(c.Request.Context())
		c.JSON(http.StatusOK, s.listView(c.Query("q")))
	})

	router.GET("/api/rates/:id", func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid instrument id"})
			return
		}
		s.activateDetail(c.Request.Context(), id)
		c.JSON(http.StatusOK, s.detailView(id))
	})

	router.GET("/api/logs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"logs": s.logStore.snapshot()})
	})

	router.GET("/api/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"metrics": s.metricStore.snapshot()})
	})

	router.GET("/api/resources", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"resources": s.resourceSampler.snapshots()})
	})

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	return router, nil
}

// activateList puts the scheduler into track-everything mode. Repeated calls
// from screen refreshes leave a running loop alone.
func (s *Server) activateList(ctx context.Context) {
	if err := s.directory.Ensure(ctx); err != nil {
		s.log.WithComponent("dashboard").WithError(err).Warn("instrument directory unavailable")
	}
	s.scheduler.PollAll(s.directory.IDs())
}

// activateDetail puts the scheduler into single-instrument mode. When the
// fresh-window variant is configured, entering a detail screen drops that
// instrument's accumulated history before polling resumes.
func (s *Server) activateDetail(ctx context.Context, id int) {
	if err := s.directory.Ensure(ctx); err != nil {
		s.log.WithComponent("dashboard").WithError(err).Warn("instrument directory unavailable")
	}

	if s.pollCfg.ClearOnDetail && !s.trackingOne(id) {
		s.cache.Clear(id)
	}
	s.scheduler.PollOne(id)
}

func (s *Server) trackingOne(id int) bool {
	if s.scheduler.Mode() != poller.ModeOne {
		return false
	}
	target := s.scheduler.Target()
	return len(target) == 1 && target[0] == id
}

func fsSub(path string) (fs.FS, error) {
	sub, err := fs.Sub(embeddedFS, path)
	if err != nil {
		return nil, err
	}
	return sub, nil
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
