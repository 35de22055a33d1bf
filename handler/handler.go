// Package handler exposes the search API over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ncobase/placesearch/ctxutil"
	"github.com/ncobase/placesearch/ecode"
	"github.com/ncobase/placesearch/logging/logger"
	"github.com/ncobase/placesearch/net/resp"
	"github.com/ncobase/placesearch/realtime"
	"github.com/ncobase/placesearch/search"
	"github.com/ncobase/placesearch/service"
	"github.com/sirupsen/logrus"
)

const (
	sessionHeader = "X-Session-ID"
	userHeader    = "X-User-ID"
	traceHeader   = "X-Trace-ID"

	retryAfter = time.Second
)

// Searcher is the accept and polling surface of the search service.
type Searcher interface {
	Submit(ctx context.Context, req *search.Request) (*service.Accepted, error)
	Search(ctx context.Context, req *search.Request) (*search.Response, error)
	Result(ctx context.Context, requestID, sessionID string) (*service.ResultView, error)
}

// Pinger checks the shared store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options are the handler collaborators. Searcher is required.
type Options struct {
	Searcher Searcher
	Realtime *realtime.Handler
	Stats    func() realtime.Stats
	Store    Pinger
	Metrics  http.Handler
	Logger   *logger.Logger
}

// Handler handles search HTTP requests.
type Handler struct {
	searcher Searcher
	realtime *realtime.Handler
	stats    func() realtime.Stats
	store    Pinger
	metrics  http.Handler
	logger   *logger.Logger
}

// New creates a Handler.
func New(opts Options) *Handler {
	h := &Handler{
		searcher: opts.Searcher,
		realtime: opts.Realtime,
		stats:    opts.Stats,
		store:    opts.Store,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
	if h.logger == nil {
		h.logger = logger.Discard()
	}
	return h
}

// Register mounts the routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.Use(Trace())

	v1 := r.Group("/v1")
	v1.POST("/search", h.Search)
	v1.GET("/search/:requestId/result", h.Result)
	if h.realtime != nil {
		v1.GET("/ws", h.realtime.HandleConnection)
	}

	r.GET("/health", h.Health)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics))
	}
}

// Trace makes sure every request carries a trace id and echoes it back.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader(traceHeader); id != "" {
			ctx = ctxutil.SetTraceID(ctx, id)
		}
		ctx, traceID := ctxutil.EnsureTraceID(ctx)
		c.Request = c.Request.WithContext(ctxutil.WithGinContext(ctx, c))
		c.Header(traceHeader, traceID)
		c.Next()
	}
}

type searchBody struct {
	search.Request
	Mode service.Mode `json:"mode" binding:"omitempty,oneof=async sync"`
}

// Search accepts a search. Async mode answers 202 with the polling URL,
// sync mode answers 200 with the full response.
func (h *Handler) Search(c *gin.Context) {
	sessionID := c.GetHeader(sessionHeader)
	if sessionID == "" {
		resp.Fail(c.Writer, resp.BadRequest(ecode.FieldIsRequired(sessionHeader)))
		return
	}

	var body searchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		resp.Fail(c.Writer, resp.InvalidParams(err.Error()))
		return
	}

	req := body.Request
	req.SessionID = sessionID
	req.UserID = c.GetHeader(userHeader)

	ctx := ctxutil.SetSessionID(c.Request.Context(), req.SessionID)
	if req.UserID != "" {
		ctx = ctxutil.SetUserID(ctx, req.UserID)
	}

	if body.Mode == service.ModeSync {
		out, err := h.searcher.Search(ctx, &req)
		if err != nil {
			h.fail(ctx, c, err)
			return
		}
		resp.Success(c.Writer, out)
		return
	}

	acc, err := h.searcher.Submit(ctx, &req)
	if err != nil {
		h.fail(ctx, c, err)
		return
	}
	resp.WithStatusCode(c.Writer, http.StatusAccepted, acc)
}

// Result returns the polling view of a request.
func (h *Handler) Result(c *gin.Context) {
	sessionID := c.GetHeader(sessionHeader)
	if sessionID == "" {
		sessionID = c.Query("session")
	}
	ctx := c.Request.Context()

	view, err := h.searcher.Result(ctx, c.Param("requestId"), sessionID)
	if err != nil {
		h.fail(ctx, c, err)
		return
	}
	resp.WithStatusCode(c.Writer, view.StatusCode, view.Body)
}

// Health reports store reachability and realtime counts.
func (h *Handler) Health(c *gin.Context) {
	out := gin.H{"status": "ok"}
	if h.stats != nil {
		out["realtime"] = h.stats()
	}
	if h.store != nil {
		if err := h.store.Ping(c.Request.Context()); err != nil {
			out["status"] = "degraded"
			out["store"] = err.Error()
			resp.Fail(c.Writer, resp.Unavailable("shared store unreachable", out))
			return
		}
		out["store"] = "ok"
	}
	resp.Success(c.Writer, out)
}

func (h *Handler) fail(ctx context.Context, c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrBusy):
		resp.Fail(c.Writer, resp.Unavailable("too many pending searches").WithRetryAfter(retryAfter))
	case errors.Is(err, service.ErrNotFound):
		resp.Fail(c.Writer, resp.NotFound(ecode.NotExist("request")))
	case errors.Is(err, service.ErrForbidden):
		resp.Fail(c.Writer, resp.Forbidden(ecode.Mismatch("session")))
	default:
		h.logger.WithFields(ctx, logrus.Fields{"path": c.FullPath(), "error": err}).Error("request failed")
		resp.Fail(c.Writer, resp.InternalServer("internal error"))
	}
}
