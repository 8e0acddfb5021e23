package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/danielpatrickdp/taste-genome/internal/analysis"
	"github.com/danielpatrickdp/taste-genome/internal/catalog"
	"github.com/danielpatrickdp/taste-genome/internal/gate"
	"github.com/danielpatrickdp/taste-genome/internal/logging"
	"github.com/danielpatrickdp/taste-genome/internal/orchestrator"
	"github.com/danielpatrickdp/taste-genome/internal/projection"
	"github.com/danielpatrickdp/taste-genome/internal/quiz"
	"github.com/danielpatrickdp/taste-genome/internal/signals"
	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// #region service

// Service is the engine surface served over HTTP. *orchestrator.Orchestrator implements it.
type Service interface {
	SubmitSignal(ctx context.Context, sig signals.Signal) (signals.Signal, state.Genome, error)
	GetQuizBatch(ctx context.Context, profileID string) (quiz.Batch, error)
	SubmitQuizAnswers(ctx context.Context, profileID string, responses []quiz.Response) (quiz.Batch, state.Genome, error)
	GetGenome(ctx context.Context, profileID string) (state.Genome, error)
	Recompute(ctx context.Context, profileID string) (state.Genome, error)
	Versions(ctx context.Context, profileID string, limit int) ([]state.Genome, error)
	Rollback(ctx context.Context, profileID, versionID string) error
	Evolution(ctx context.Context, profileID string, limit int) ([]logging.EvolutionEntry, error)

	GetConvictionReport(ctx context.Context, profileID string, content analysis.Content) (state.ConvictionReport, error)
	Report(ctx context.Context, postID string) (state.ConvictionReport, error)
	Override(ctx context.Context, postID, reason string) (state.ConvictionReport, error)
	Publish(ctx context.Context, postID string) (state.ConvictionReport, error)

	GetAudienceDepth(ctx context.Context, postID string) (orchestrator.AudienceView, error)
	RefreshAudienceDepth(ctx context.Context, postID string) (orchestrator.AudienceView, error)
	GetValidation(ctx context.Context, postID string) (state.ValidationResult, error)
}

// #endregion service

// #region router

// Handler serves the engine's REST surface.
type Handler struct {
	svc        Service
	archetypes []catalog.Archetype
	logger     *slog.Logger
}

// NewRouter builds the gin engine. metrics may be nil.
func NewRouter(svc Service, archetypes []catalog.Archetype, metrics http.Handler, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{svc: svc, archetypes: archetypes, logger: logger.With("component", "api")}

	r := gin.New()
	r.Use(gin.Recovery(), h.logRequests)
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := r.Group("/v1")
	v1.GET("/archetypes", h.listArchetypes)

	p := v1.Group("/profiles/:profileId")
	p.POST("/signals", h.submitSignal)
	p.GET("/genome", h.getGenome)
	p.GET("/genome/summary", h.getSummary)
	p.POST("/genome/recompute", h.recompute)
	p.GET("/genome/versions", h.listVersions)
	p.POST("/genome/rollback", h.rollback)
	p.GET("/quiz", h.getQuizBatch)
	p.POST("/quiz/answers", h.submitQuizAnswers)
	p.GET("/evolution", h.listEvolution)
	p.POST("/conviction", h.scoreContent)

	posts := v1.Group("/posts/:postId")
	posts.GET("/conviction", h.getReport)
	posts.POST("/override", h.override)
	posts.POST("/publish", h.publish)
	posts.GET("/audience", h.getAudience)
	posts.POST("/audience/refresh", h.refreshAudience)
	posts.GET("/validation", h.getValidation)

	return r
}

func (h *Handler) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	h.logger.Debug("request",
		"method", c.Request.Method, "route", c.FullPath(), "status", c.Writer.Status(),
		"duration", time.Since(start))
}

// #endregion router

// #region errors

// fail maps engine errors onto HTTP statuses.
func (h *Handler) fail(c *gin.Context, err error) {
	var verr *signals.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, orchestrator.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrFrozen),
		errors.Is(err, orchestrator.ErrNotPublished),
		errors.Is(err, gate.ErrNotOverridable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", "route", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
}

func limitParam(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer", "field": "limit"})
		return 0, false
	}
	return n, true
}

// #endregion errors

// #region genome-handlers

func (h *Handler) listArchetypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"archetypes": h.archetypes})
}

func (h *Handler) submitSignal(c *gin.Context) {
	var req signalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sig, err := req.toSignal(c.Param("profileId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	stored, g, err := h.svc.SubmitSignal(c.Request.Context(), sig)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, submitSignalResponse{Signal: toSignal(stored), Genome: toGenome(g)})
}

func (h *Handler) getGenome(c *gin.Context) {
	g, err := h.svc.GetGenome(c.Request.Context(), c.Param("profileId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toGenome(g))
}

func (h *Handler) getSummary(c *gin.Context) {
	g, err := h.svc.GetGenome(c.Request.Context(), c.Param("profileId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	s := projection.Summarize(g, h.archetypes, 0)
	c.JSON(http.StatusOK, gin.H{"summary": s, "brief": projection.Brief(s)})
}

func (h *Handler) recompute(c *gin.Context) {
	g, err := h.svc.Recompute(c.Request.Context(), c.Param("profileId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toGenome(g))
}

func (h *Handler) listVersions(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	versions, err := h.svc.Versions(c.Request.Context(), c.Param("profileId"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]genomeResponse, len(versions))
	for i, g := range versions {
		out[i] = toGenome(g)
	}
	c.JSON(http.StatusOK, gin.H{"versions": out})
}

func (h *Handler) rollback(c *gin.Context) {
	var req rollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	profileID := c.Param("profileId")
	if err := h.svc.Rollback(ctx, profileID, req.VersionID); err != nil {
		h.fail(c, err)
		return
	}
	g, err := h.svc.GetGenome(ctx, profileID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toGenome(g))
}

func (h *Handler) listEvolution(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	entries, err := h.svc.Evolution(c.Request.Context(), c.Param("profileId"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if entries == nil {
		entries = []logging.EvolutionEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// #endregion genome-handlers

// #region quiz-handlers

func (h *Handler) getQuizBatch(c *gin.Context) {
	b, err := h.svc.GetQuizBatch(c.Request.Context(), c.Param("profileId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) submitQuizAnswers(c *gin.Context) {
	var req quizAnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	next, g, err := h.svc.SubmitQuizAnswers(c.Request.Context(), c.Param("profileId"), req.Responses)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, quizAnswersResponse{Next: next, Genome: toGenome(g)})
}

// #endregion quiz-handlers

// #region conviction-handlers

func (h *Handler) scoreContent(c *gin.Context) {
	var content analysis.Content
	if err := c.ShouldBindJSON(&content); err != nil {
		badRequest(c, err)
		return
	}
	r, err := h.svc.GetConvictionReport(c.Request.Context(), c.Param("profileId"), content)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) getReport(c *gin.Context) {
	r, err := h.svc.Report(c.Request.Context(), c.Param("postId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) override(c *gin.Context) {
	var req overrideRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	r, err := h.svc.Override(c.Request.Context(), c.Param("postId"), req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) publish(c *gin.Context) {
	r, err := h.svc.Publish(c.Request.Context(), c.Param("postId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// #endregion conviction-handlers

// #region audience-handlers

func (h *Handler) getAudience(c *gin.Context) {
	v, err := h.svc.GetAudienceDepth(c.Request.Context(), c.Param("postId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) refreshAudience(c *gin.Context) {
	v, err := h.svc.RefreshAudienceDepth(c.Request.Context(), c.Param("postId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) getValidation(c *gin.Context) {
	v, err := h.svc.GetValidation(c.Request.Context(), c.Param("postId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// #endregion audience-handlers
