package server

import (
	"context"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"kuner/internal/audit"
	"kuner/internal/config"
	"kuner/internal/models"
	"kuner/internal/ner"
	"kuner/internal/telemetry"
)

// Analyzer is the slice of the ner pipeline the server needs; tests swap
// in fakes.
type Analyzer interface {
	RecognizeTimed(ctx context.Context, text string) ([]ner.Entity, ner.Timing, error)
}

type Options struct {
	Config     *config.Config
	Registry   models.Registry
	ModelsRoot string
	Logger     audit.Logger
	Telemetry  *telemetry.Provider

	// NewAnalyzer builds the pipeline for the active model dir. Defaults
	// to ner.NewPipeline over the configured bundle.
	NewAnalyzer func() Analyzer
}

type Server struct {
	opts    Options
	engine  *gin.Engine
	http    *http.Server
	hub     *downloadHub
	started time.Time

	mu       sync.Mutex
	analyzer Analyzer
}

func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = audit.NopLogger{}
	}
	if opts.Telemetry == nil {
		opts.Telemetry, _ = telemetry.NewProvider(context.Background(), telemetry.Config{})
	}
	s := &Server{opts: opts, started: time.Now()}
	if s.opts.NewAnalyzer == nil {
		s.opts.NewAnalyzer = func() Analyzer {
			return ner.NewPipeline(ner.Config{
				ModelDir: s.activeModelDir(),
				MaxBytes: opts.Config.Model.MaxBytes,
				MinScore: opts.Config.Model.MinScore,
				SeqLen:   opts.Config.Model.SeqLen,
			})
		}
	}
	s.hub = newDownloadHub(s.resetAnalyzer)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	tmpl, err := template.ParseFS(webFS, "web/templates/*.html")
	if err != nil {
		return nil, err
	}
	r.SetHTMLTemplate(tmpl)

	staticFS, err := fs.Sub(webFS, "web/static")
	if err != nil {
		return nil, err
	}
	r.StaticFS("/static", http.FS(staticFS))

	r.GET("/", s.indexPage)
	r.POST("/api/analyze", s.handleAnalyze)
	r.GET("/api/health", s.handleHealth)
	r.GET("/api/model", s.handleModel)
	r.POST("/api/model/download", s.handleModelDownload)
	r.GET("/api/stats", s.handleStats)
	r.GET("/ws/progress", s.handleProgressWS)

	s.engine = r
	s.http = &http.Server{Addr: opts.Config.Server.Addr, Handler: r}
	return s, nil
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler { return s.engine }

func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if closer, ok := s.analyzer.(io.Closer); ok {
		_ = closer.Close()
	}
	s.mu.Unlock()
	return s.http.Shutdown(ctx)
}

// activeModelDir is the explicit bundle dir when configured, otherwise the
// install path of the configured model name.
func (s *Server) activeModelDir() string {
	if s.opts.Config.Model.Dir != "" {
		return s.opts.Config.Model.Dir
	}
	return models.ModelInstallPath(s.opts.ModelsRoot, s.opts.Config.Model.Name)
}

func (s *Server) currentAnalyzer() Analyzer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analyzer == nil {
		s.analyzer = s.opts.NewAnalyzer()
	}
	return s.analyzer
}

// resetAnalyzer drops the cached pipeline so the next request loads a
// freshly installed bundle.
func (s *Server) resetAnalyzer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if closer, ok := s.analyzer.(io.Closer); ok {
		_ = closer.Close()
	}
	s.analyzer = nil
}
