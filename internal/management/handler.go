package management

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nalabelle/miniflux-filter/internal/logger"
	"github.com/nalabelle/miniflux-filter/internal/rules"
	pkgerrors "github.com/nalabelle/miniflux-filter/pkg/errors"
)

// Handler exposes the management API over HTTP.
type Handler struct {
	service *Service
	log     logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// RegisterRoutes mounts the management API under /api.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api")
	{
		api.GET("/rules", h.listRuleSets)
		api.POST("/rules", h.createRuleSet)
		api.POST("/rules/reload", h.reloadRuleSets)
		api.GET("/rules/:feed_id", h.getRuleSet)
		api.PUT("/rules/:feed_id", h.updateRuleSet)
		api.DELETE("/rules/:feed_id", h.deleteRuleSet)

		api.POST("/sync", h.syncAll)
		api.POST("/sync/:feed_id", h.syncFeed)

		api.GET("/feeds", h.listFeeds)
		api.GET("/logs", h.recentLogs)
		api.DELETE("/logs", h.clearLogs)
		api.GET("/stats", h.stats)
	}
}

func (h *Handler) listRuleSets(c *gin.Context) {
	sets := h.service.ListRuleSets(c.Request.Context())
	respondOK(c, sets)
}

func (h *Handler) getRuleSet(c *gin.Context) {
	feedID, ok := h.feedIDParam(c)
	if !ok {
		return
	}

	rs, err := h.service.GetRuleSet(c.Request.Context(), feedID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, rs)
}

func (h *Handler) createRuleSet(c *gin.Context) {
	var req CreateRuleSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, pkgerrors.ErrValidation.WithMessage("invalid request body").WithCause(err))
		return
	}

	rs, err := h.service.CreateRuleSet(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: rs})
}

func (h *Handler) updateRuleSet(c *gin.Context) {
	feedID, ok := h.feedIDParam(c)
	if !ok {
		return
	}

	var rs rules.RuleSet
	if err := c.ShouldBindJSON(&rs); err != nil {
		h.respondError(c, pkgerrors.ErrValidation.WithMessage("invalid request body").WithCause(err))
		return
	}

	updated, err := h.service.UpdateRuleSet(c.Request.Context(), feedID, &rs)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, updated)
}

func (h *Handler) deleteRuleSet(c *gin.Context) {
	feedID, ok := h.feedIDParam(c)
	if !ok {
		return
	}

	if err := h.service.DeleteRuleSet(c.Request.Context(), feedID); err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, gin.H{"feed_id": feedID, "deleted": true})
}

func (h *Handler) reloadRuleSets(c *gin.Context) {
	if err := h.service.ReloadRuleSets(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, h.service.Stats(c.Request.Context()))
}

func (h *Handler) syncAll(c *gin.Context) {
	h.service.ExecuteAll(c.Request.Context())
	c.JSON(http.StatusAccepted, APIResponse{Success: true, Data: gin.H{"started": true}})
}

func (h *Handler) syncFeed(c *gin.Context) {
	feedID, ok := h.feedIDParam(c)
	if !ok {
		return
	}

	result, err := h.service.ExecuteNow(c.Request.Context(), feedID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, result)
}

func (h *Handler) listFeeds(c *gin.Context) {
	feeds, err := h.service.ListFeeds(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, feeds)
}

func (h *Handler) recentLogs(c *gin.Context) {
	respondOK(c, h.service.RecentLogs(c.Request.Context()))
}

func (h *Handler) clearLogs(c *gin.Context) {
	h.service.ClearLogs(c.Request.Context())
	respondOK(c, gin.H{"cleared": true})
}

func (h *Handler) stats(c *gin.Context) {
	respondOK(c, h.service.Stats(c.Request.Context()))
}

func (h *Handler) feedIDParam(c *gin.Context) (int64, bool) {
	feedID, err := strconv.ParseInt(c.Param("feed_id"), 10, 64)
	if err != nil || feedID <= 0 {
		h.respondError(c, pkgerrors.ErrValidation.WithMessage("feed_id must be a positive integer"))
		return 0, false
	}
	return feedID, true
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := pkgerrors.ToHTTPStatus(err)
	message := err.Error()

	var appErr *pkgerrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	if status >= http.StatusInternalServerError {
		h.log.ErrorwCtx(c.Request.Context(), "Request failed", "status", status, "error", err)
	}

	c.JSON(status, APIResponse{Success: false, Error: message})
}
