package http

import (
	"errors"
	"net/http"
	"strconv"

	"gitee.com/flycash/broadcast-platform/internal/domain"
	"gitee.com/flycash/broadcast-platform/internal/errs"
	"gitee.com/flycash/broadcast-platform/internal/service/orchestrator"
	"github.com/gin-gonic/gin"
)

// Handler 广播管理接口
type Handler struct {
	svc orchestrator.Orchestrator
}

// NewHandler 注册路由
func NewHandler(r *gin.Engine, svc orchestrator.Orchestrator) {
	h := &Handler{svc: svc}

	g := r.Group("/v1/broadcasts")
	{
		g.POST("", h.Create)
		g.POST("/:id/send", h.Send)
		g.POST("/:id/cancel", h.Cancel)
		g.GET("/:id", h.Get)
	}
}

func (h *Handler) Create(c *gin.Context) {
	var req struct {
		Title    string          `json:"title"`
		Content  string          `json:"content"`
		Author   string          `json:"author"`
		Audience domain.Audience `json:"audience"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.svc.CreateDraft(c.Request.Context(), domain.Notification{
		Title:    req.Title,
		Content:  req.Content,
		Author:   req.Author,
		Audience: req.Audience,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": strconv.FormatUint(created.ID, 10)})
}

func (h *Handler) Send(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	if err := h.svc.Send(c.Request.Context(), id); err != nil {
		h.renderError(c, err)
		return
	}

	// 空受众会在发送调用内直接收尾，回读拿到真实状态
	status := domain.SendStatusSending
	if notification, err := h.svc.GetStatus(c.Request.Context(), id); err == nil {
		status = notification.Status
	}
	c.JSON(http.StatusAccepted, gin.H{"status": status.String()})
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	if err := h.svc.Cancel(c.Request.Context(), id); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": domain.SendStatusCanceled.String()})
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	notification, err := h.svc.GetStatus(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":        strconv.FormatUint(notification.ID, 10),
		"title":     notification.Title,
		"author":    notification.Author,
		"status":    notification.Status.String(),
		"total":     notification.Counters.Total,
		"succeeded": notification.Counters.Succeeded,
		"failed":    notification.Counters.Failed,
		"throttled": notification.Counters.Throttled,
		"canceled":  notification.Counters.Canceled,
		"pending":   notification.Counters.Pending,
		"sentAt":    notification.SentAt,
	})
}

func (h *Handler) parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "非法的通知ID"})
		return 0, false
	}
	return id, true
}

func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrInvalidParameter):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrNotificationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrInvalidStatusTransition),
		errors.Is(err, errs.ErrNotificationTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
