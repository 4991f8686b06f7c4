package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/angeloszaimis/service-gateway/internal/circuitbreaker"
	"github.com/angeloszaimis/service-gateway/internal/registry"
)

// ErrClientClosed marks a proxied call abandoned by the client. It says
// nothing about the upstream.
var ErrClientClosed = errors.New("client closed request")

// nginx's non-standard code for a request the client gave up on.
const statusClientClosedRequest = 499

// UpstreamError is a forwarded call that failed: either no response arrived
// (StatusCode 0) or the upstream answered outside 2xx.
type UpstreamError struct {
	StatusCode int
	Message    string // "message" field of the upstream JSON body, if any
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream request failed: %v", e.Err)
	}
	return fmt.Sprintf("upstream responded with status code %d", e.StatusCode)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

const circuitOpenDetails = "Circuit breaker is open due to multiple failures"

func (g *Gateway) writeError(c *gin.Context, service string, err error) {
	status, body := translate(err)

	g.logger.Warn("Proxy request failed",
		slog.String("service", service),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", status),
		slog.Any("err", err))

	c.AbortWithStatusJSON(status, body)
}

func translate(err error) (int, errorResponse) {
	var upstreamErr *UpstreamError

	switch {
	case errors.Is(err, registry.ErrServiceUnavailable),
		errors.Is(err, circuitbreaker.ErrCircuitOpen),
		errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable, errorResponse{
			Error:   "Service temporarily unavailable",
			Details: circuitOpenDetails,
		}

	case errors.Is(err, ErrClientClosed):
		return statusClientClosedRequest, errorResponse{
			Error:   "Client closed request",
			Details: err.Error(),
		}

	case errors.Is(err, registry.ErrServiceNotFound):
		return http.StatusNotFound, errorResponse{
			Error:   "Service not found",
			Details: err.Error(),
		}

	case errors.As(err, &upstreamErr):
		status := upstreamErr.StatusCode
		if status == 0 {
			status = http.StatusInternalServerError
		}
		details := upstreamErr.Message
		if details == "" {
			details = upstreamErr.Error()
		}
		return status, errorResponse{Error: "Service error", Details: details}

	default:
		return http.StatusInternalServerError, errorResponse{
			Error:   "Service error",
			Details: err.Error(),
		}
	}
}
