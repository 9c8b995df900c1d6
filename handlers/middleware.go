package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"food_ordering/services"
	"food_ordering/tracing"
)

const (
	requestContextKey = "request_context"
	sessionCookie     = "session"
	cartCookie        = "cart_session"
	sessionKeyHeader  = "X-Session-Key"
	requestIDHeader   = "X-Request-ID"
	idempotencyHeader = "Idempotency-Key"
	cartCookieMaxAge  = 30 * 24 * 60 * 60
)

// TokenParser is implemented by services.AuthService.
type TokenParser interface {
	ParseToken(token string) (*services.Session, error)
}

// IdempotencyGuard is implemented by cache.IdempotencyStore.
type IdempotencyGuard interface {
	Key(scope, requestKey string) string
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// RequestLogger tags each request with an id and logs it on completion.
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Set(loggerKey, log.With("request_id", requestID))

		c.Next()

		log.Info("http request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP())
	}
}

// Trace continues the caller's trace from its traceparent header and opens
// a span for the request.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := tracing.Extract(c.Request.Context(), c.Request.Header)
		ctx, span := tracing.Start(ctx, c.Request.Method+" "+c.FullPath())
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
		if c.Writer.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(c.Writer.Status()))
		}
	}
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if v, err := c.Cookie(sessionCookie); err == nil {
		return v
	}
	return ""
}

// Session resolves the caller: a signed-in user from the session token and
// the anonymous cart key from the cart cookie or header. A new cart key is
// issued when none is sent.
func Session(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(sessionKeyHeader)
		if key == "" {
			key, _ = c.Cookie(cartCookie)
		}
		if key == "" {
			key = uuid.NewString()
			c.SetCookie(cartCookie, key, cartCookieMaxAge, "/", "", false, true)
		}
		c.Header(sessionKeyHeader, key)

		rc := services.Anonymous(key)
		if token := bearerToken(c); token != "" {
			if session, err := tokens.ParseToken(token); err == nil {
				rc = services.ForUser(session.UserID, key)
				rc.IsAdmin = session.IsAdmin
			}
		}
		c.Set(requestContextKey, rc)
		c.Next()
	}
}

func requestContext(c *gin.Context) services.RequestContext {
	if v, ok := c.Get(requestContextKey); ok {
		if rc, ok := v.(services.RequestContext); ok {
			return rc
		}
	}
	return services.RequestContext{}
}

func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requestContext(c).IsAuthenticated {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
			return
		}
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := requestContext(c)
		if !rc.IsAuthenticated {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
			return
		}
		if !rc.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// Idempotent rejects a repeated Idempotency-Key for scope. A request that
// fails releases its key so the client can retry. Without a guard, or
// without the header, requests pass through.
func Idempotent(guard IdempotencyGuard, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestKey := c.GetHeader(idempotencyHeader)
		if guard == nil || requestKey == "" {
			c.Next()
			return
		}
		rc := requestContext(c)
		owner := rc.SessionKey
		if rc.IsAuthenticated {
			owner = "u" + strconv.FormatInt(rc.UserID, 10)
		}
		key := guard.Key(scope, owner+":"+requestKey)

		seen, err := guard.Seen(c.Request.Context(), key)
		if err != nil {
			loggerFrom(c).Warn("idempotency check unavailable", "err", err)
			c.Next()
			return
		}
		if seen {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "duplicate request", "code": "duplicate_request"})
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			if err := guard.Forget(context.WithoutCancel(c.Request.Context()), key); err != nil {
				loggerFrom(c).Warn("idempotency key release failed", "err", err)
			}
		}
	}
}
