package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"kuner/internal/audit"
	"kuner/internal/models"
	"kuner/internal/ner"
	"kuner/internal/stats"
)

type analyzeRequest struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	Entities   []ner.Entity `json:"entities"`
	HTML       string       `json:"html"`
	TokenizeMs float64      `json:"tokenize_ms"`
	InferMs    float64      `json:"infer_ms"`
	TotalMs    float64      `json:"total_ms"`
}

func (s *Server) indexPage(c *gin.Context) {
	spec, _ := s.opts.Registry.Find(s.opts.Config.Model.Name)
	c.HTML(http.StatusOK, "index.html", gin.H{
		"ModelName":   spec.DisplayName,
		"MinScore":    s.opts.Config.Model.MinScore,
		"Placeholder": "Navê min Hejar e û ez li Hewlêr dijîm.",
	})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	ctx, span := s.opts.Telemetry.StartSpan(c.Request.Context(), "analyze")
	entities, timing, err := s.currentAnalyzer().RecognizeTimed(ctx, req.Text)
	span.End()

	byLabel := map[string]int{}
	for _, e := range entities {
		byLabel[e.Label]++
	}

	entry := audit.Entry{
		TextBytes:  len(req.Text),
		Entities:   len(entities),
		ByLabel:    byLabel,
		TokenizeMs: durMs(timing.Tokenize),
		InferMs:    durMs(timing.Infer),
		TotalMs:    durMs(timing.Total),
	}

	switch {
	case errors.Is(err, ner.ErrModelUnavailable):
		entry.Status = "unavailable"
		entry.Error = err.Error()
		_ = s.opts.Logger.Log(entry)
		s.opts.Telemetry.RecordAnalyze(ctx, entry.Status, timing.Infer, nil)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "model not available", "detail": err.Error()})
		return
	case err != nil:
		entry.Status = "error"
		entry.Error = err.Error()
		_ = s.opts.Logger.Log(entry)
		s.opts.Telemetry.RecordAnalyze(ctx, entry.Status, timing.Infer, nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	entry.Status = "ok"
	_ = s.opts.Logger.Log(entry)
	s.opts.Telemetry.RecordAnalyze(ctx, entry.Status, timing.Infer, byLabel)

	if entities == nil {
		entities = []ner.Entity{}
	}
	c.JSON(http.StatusOK, analyzeResponse{
		Entities:   entities,
		HTML:       HighlightHTML(req.Text, entities),
		TokenizeMs: durMs(timing.Tokenize),
		InferMs:    durMs(timing.Infer),
		TotalMs:    durMs(timing.Total),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"installed": s.modelInstalled(),
	})
}

func (s *Server) handleModel(c *gin.Context) {
	resp := gin.H{
		"active_dir": s.activeModelDir(),
		"installed":  s.modelInstalled(),
		"download":   s.hub.snapshot(),
	}
	if spec, ok := s.opts.Registry.Find(s.opts.Config.Model.Name); ok {
		resp["model"] = spec
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleModelDownload(c *gin.Context) {
	spec, ok := s.opts.Registry.Find(s.opts.Config.Model.Name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "model not in registry: " + s.opts.Config.Model.Name})
		return
	}
	if s.modelInstalled() {
		c.JSON(http.StatusOK, gin.H{"state": "done"})
		return
	}
	if err := s.hub.Start(spec, s.opts.ModelsRoot); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"state": "downloading"})
}

func (s *Server) handleStats(c *gin.Context) {
	entries, err := audit.ParseFile(s.opts.Config.Logging.RequestLog)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats.CollectFromEntries(entries, stats.Options{
		Status: "running",
		Uptime: time.Since(s.started),
	}))
}

func (s *Server) modelInstalled() bool {
	return models.BundleComplete(s.activeModelDir())
}

func durMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
