package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const defaultContentType = "application/json"

// Only these inbound headers travel upstream.
var forwardedHeaders = []string{"Cookie", "Authorization", "Content-Type"}

type upstreamResponse struct {
	statusCode  int
	contentType string
	body        []byte
}

func (g *Gateway) handleProxy(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		address, err := g.registry.Service(name)
		if err != nil {
			g.writeError(c, name, err)
			return
		}

		breaker, err := g.registry.Breaker(name)
		if err != nil {
			g.writeError(c, name, err)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, g.maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorResponse{
					Error:   "Request body too large",
					Details: fmt.Sprintf("limit is %d bytes", tooLarge.Limit),
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
				Error:   "Invalid request body",
				Details: err.Error(),
			})
			return
		}

		target := upstreamURL(address, name, c.Param("path"), c.Request.URL.RawQuery)

		var res *upstreamResponse
		err = breaker.Execute(func() error {
			var callErr error
			res, callErr = g.forward(c, target, body)
			return callErr
		})
		if err != nil {
			g.writeError(c, name, err)
			return
		}

		c.Data(res.statusCode, res.contentType, res.body)
	}
}

// forward performs one upstream call. Anything but a 2xx answer is an
// *UpstreamError and therefore a breaker failure. A call cut short because
// the client went away is reported as ErrClientClosed, which the breaker
// does not count.
func (g *Gateway) forward(c *gin.Context, target string, body []byte) (*upstreamResponse, error) {
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target, bytes.NewReader(body))
	if err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("build request: %w", err)}
	}

	for _, h := range forwardedHeaders {
		if v := c.GetHeader(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	if identity, ok := identityFrom(c); ok {
		req.Header.Set(headerForwardedUser, identity.Header())
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if clientErr := clientGone(c.Request.Context(), err); clientErr != nil {
			return nil, clientErr
		}
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		if clientErr := clientGone(c.Request.Context(), err); clientErr != nil {
			return nil, clientErr
		}
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    messageField(payload),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}

	return &upstreamResponse{
		statusCode:  resp.StatusCode,
		contentType: contentType,
		body:        payload,
	}, nil
}

// clientGone reports err as ErrClientClosed when the inbound request ended
// before the upstream call did. The result wraps context.Canceled so the
// breaker leaves it out of its counts.
func clientGone(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		return nil
	}
	return fmt.Errorf("%w: %w: %w", ErrClientClosed, context.Canceled, err)
}

// upstreamURL maps /<base>/<name>/<rest> onto <address>/<name>/<rest>.
func upstreamURL(address, name, rest, rawQuery string) string {
	target := strings.TrimSuffix(address, "/") + "/" + name + rest
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}

func messageField(payload []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return body.Message
}
