package obs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// Middleware tags each request with an id and writes one access log line per
// request once the handler returns. For /ws that is when the session ends.
type Middleware struct {
	Logger *slog.Logger
}

// request travels in the request context so handlers can attach fields to
// the access log line.
type request struct {
	id    string
	mu    sync.Mutex
	attrs []slog.Attr
}

type requestKey struct{}

func (m Middleware) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		req := &request{id: id}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), requestKey{}, req))
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// AccessLog logs the route, the outcome and every attribute handlers added
// through Annotate. Server errors are logged at warn.
func (m Middleware) AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m.Logger == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		}
		if req := requestFrom(c.Request.Context()); req != nil {
			req.mu.Lock()
			attrs = append(attrs, slog.String("request_id", req.id))
			attrs = append(attrs, req.attrs...)
			req.mu.Unlock()
		}
		level := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			level = slog.LevelWarn
		}
		m.Logger.LogAttrs(c.Request.Context(), level, "request", attrs...)
	}
}

// Annotate adds attrs to the access log line of the request carried by ctx.
// Outside a request it does nothing.
func Annotate(ctx context.Context, attrs ...slog.Attr) {
	req := requestFrom(ctx)
	if req == nil {
		return
	}
	req.mu.Lock()
	req.attrs = append(req.attrs, attrs...)
	req.mu.Unlock()
}

func RequestIDFromContext(ctx context.Context) string {
	if req := requestFrom(ctx); req != nil {
		return req.id
	}
	return ""
}

func requestFrom(ctx context.Context) *request {
	req, _ := ctx.Value(requestKey{}).(*request)
	return req
}
