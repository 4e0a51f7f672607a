package assisthttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"poscalc/internal/assistant"
	"poscalc/internal/logger"
	"poscalc/internal/order"
	"poscalc/internal/risk"
	"poscalc/internal/scheduler"
	"poscalc/internal/session"
	"poscalc/internal/store/endpoint"
	"poscalc/internal/store/journal"
)

const keepAlive = 15 * time.Second

// Assistant is the running session as the HTTP surface drives it.
type Assistant interface {
	View() assistant.View
	Subscribe() (<-chan uint64, func())
	LoadSymbols() (string, error)
	SearchSymbols(text string) (string, error)
	SelectSymbol(symbol string) (string, error)
	SetRiskInputs(ctx context.Context, inputs session.RiskInputs) error
	SetRiskPercent(ctx context.Context, percent float64) error
	UpdateForm(ctx context.Context, form order.Form) error
	CalculatePosition(side string) (string, error)
	DismissAlert(ctx context.Context, id string) (bool, error)
}

// Endpoints reads and saves the quoting server endpoint.
type Endpoints interface {
	Current(ctx context.Context) (endpoint.Endpoint, error)
	Configure(ctx context.Context, address, port string) (endpoint.Endpoint, error)
}

type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

type Router struct {
	assistant func() Assistant
	endpoints Endpoints
	journal   JournalReader
}

func NewRouter(a func() Assistant, endpoints Endpoints, j JournalReader) *Router {
	return &Router{assistant: a, endpoints: endpoints, journal: j}
}

// Register mounts the /api routes on group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/endpoint", r.handleGetEndpoint)
	group.POST("/endpoint", r.handleSaveEndpoint)
	group.GET("/journal", r.handleJournal)

	live := group.Group("", r.requireSession)
	live.GET("/view", r.handleView)
	live.GET("/events", r.handleEvents)
	live.POST("/symbols/load", r.handleLoadSymbols)
	live.POST("/symbols/search", r.handleSearchSymbols)
	live.POST("/symbols/select", r.handleSelectSymbol)
	live.POST("/risk/inputs", r.handleRiskInputs)
	live.POST("/risk/percent", r.handleRiskPercent)
	live.POST("/form", r.handleForm)
	live.POST("/position", r.handlePosition)
	live.DELETE("/alerts/:id", r.handleDismissAlert)
}

const assistantKey = "assistant"

func (r *Router) requireSession(c *gin.Context) {
	a := r.assistant()
	if a == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": endpoint.ErrNotConfigured.Error()})
		return
	}
	c.Set(assistantKey, a)
	c.Next()
}

func current(c *gin.Context) Assistant {
	return c.MustGet(assistantKey).(Assistant)
}

func (r *Router) handleGetEndpoint(c *gin.Context) {
	ep, err := r.endpoints.Current(c.Request.Context())
	if errors.Is(err, endpoint.ErrNotConfigured) {
		c.JSON(http.StatusOK, gin.H{
			"configured": false,
			"address":    endpoint.DefaultAddress,
			"port":       endpoint.DefaultPort,
		})
		return
	}
	if err != nil {
		logger.Errorf("[api] load endpoint failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"configured": true,
		"address":    ep.Address,
		"port":       ep.Port,
		"url":        ep.URL(),
	})
}

type endpointRequest struct {
	Address string `json:"address"`
	Port    string `json:"port"`
}

func (r *Router) handleSaveEndpoint(c *gin.Context) {
	var req endpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ep, err := r.endpoints.Configure(c.Request.Context(), req.Address, req.Port)
	if errors.Is(err, endpoint.ErrIncomplete) {
		c.JSON(http.StatusBadRequest, gin.H{"error": endpoint.IncompleteMessage})
		return
	}
	if errors.Is(err, endpoint.ErrInvalid) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		logger.Errorf("[api] save endpoint failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] endpoint saved ip=%s url=%s", c.ClientIP(), ep.URL())
	c.JSON(http.StatusOK, gin.H{"configured": true, "address": ep.Address, "port": ep.Port, "url": ep.URL()})
}

func (r *Router) handleJournal(c *gin.Context) {
	if r.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "calculation journal disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(journal.DefaultListLimit)))
	entries, err := r.journal.Recent(c.Request.Context(), limit)
	if err != nil {
		logger.Errorf("[api] journal list failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (r *Router) handleView(c *gin.Context) {
	c.JSON(http.StatusOK, current(c).View())
}

// handleEvents streams "refresh" with the new version after every session
// change and one "alert" per alert not yet sent on this stream.
func (r *Router) handleEvents(c *gin.Context) {
	a := current(c)
	updates, cancel := a.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	seen := make(map[string]struct{})
	push := func(view assistant.View) {
		c.SSEvent("refresh", gin.H{"version": view.Version})
		for _, alert := range view.Alerts {
			if _, ok := seen[alert.ID]; ok {
				continue
			}
			seen[alert.ID] = struct{}{}
			c.SSEvent("alert", alert)
		}
		c.Writer.Flush()
	}
	push(a.View())

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			push(a.View())
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().Unix()})
			c.Writer.Flush()
		}
	}
}

func (r *Router) handleLoadSymbols(c *gin.Context) {
	id, err := current(c).LoadSymbols()
	accepted(c, id, err)
}

type searchRequest struct {
	Text string `json:"text"`
}

func (r *Router) handleSearchSymbols(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := current(c).SearchSymbols(strings.TrimSpace(req.Text))
	accepted(c, id, err)
}

type selectRequest struct {
	Symbol string `json:"symbol"`
}

func (r *Router) handleSelectSymbol(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := current(c).SelectSymbol(req.Symbol)
	accepted(c, id, err)
}

func (r *Router) handleRiskInputs(c *gin.Context) {
	var inputs session.RiskInputs
	if err := c.ShouldBindJSON(&inputs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a := current(c)
	if err := a.SetRiskInputs(c.Request.Context(), inputs); err != nil {
		failed(c, err)
		return
	}
	c.JSON(http.StatusOK, a.View())
}

type percentRequest struct {
	Percent *float64 `json:"percent"`
}

func (r *Router) handleRiskPercent(c *gin.Context) {
	var req percentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Percent == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "percent is required"})
		return
	}
	a := current(c)
	if err := a.SetRiskPercent(c.Request.Context(), *req.Percent); err != nil {
		failed(c, err)
		return
	}
	c.JSON(http.StatusOK, a.View())
}

func (r *Router) handleForm(c *gin.Context) {
	var form order.Form
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a := current(c)
	if err := a.UpdateForm(c.Request.Context(), form); err != nil {
		failed(c, err)
		return
	}
	c.JSON(http.StatusOK, a.View())
}

func (r *Router) handlePosition(c *gin.Context) {
	var form order.Form
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a := current(c)
	if err := a.UpdateForm(c.Request.Context(), form); err != nil {
		failed(c, err)
		return
	}
	id, err := a.CalculatePosition(form.PositionAction)
	accepted(c, id, err)
}

func (r *Router) handleDismissAlert(c *gin.Context) {
	found, err := current(c).DismissAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		failed(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func accepted(c *gin.Context, taskID string, err error) {
	if err != nil {
		failed(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID})
}

func failed(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	var verr *risk.ValidationError
	switch {
	case errors.Is(err, scheduler.ErrQueueFull),
		errors.Is(err, scheduler.ErrStopped),
		errors.Is(err, session.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, order.ErrInvalid), errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
