package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"edgegate/internal/core"
)

// writeError renders any error as the uniform wire body with the request
// id attached. Non-gateway errors are wrapped as api_error.
func writeError(c echo.Context, err error) error {
	var gwErr *core.GatewayError
	if !errors.As(err, &gwErr) {
		gwErr = core.NewAPIError("", "internal server error", err.Error(), err)
	}
	if gwErr.RequestID == "" {
		gwErr.RequestID = c.Response().Header().Get(echo.HeaderXRequestID)
	}
	return c.JSON(gwErr.HTTPStatusCode(), gwErr.ToJSON())
}

// bindChatRequest decodes the request body. The custom ChatRequest
// unmarshaller preserves unknown fields for pass-through.
func bindChatRequest(c echo.Context) (*core.ChatRequest, error) {
	var req core.ChatRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return nil, core.NewInvalidRequestError("invalid JSON body", err)
	}
	return &req, nil
}

// handleChatCompletions is the standard completion endpoint, streaming or
// not depending on the request.
func (s *Server) handleChatCompletions(c echo.Context) error {
	req, err := bindChatRequest(c)
	if err != nil {
		return writeError(c, err)
	}
	return s.dispatch(c, req)
}

// handleStructuredCompletions requires a JSON schema and an allow-listed
// model before entering the shared pipeline.
func (s *Server) handleStructuredCompletions(c echo.Context) error {
	req, err := bindChatRequest(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := s.router.ValidateStructured(req); err != nil {
		return writeError(c, err)
	}
	return s.dispatch(c, req)
}

// handleGenerate is the text-only variant: same pipeline, response body
// reduced to {"text": ...}. Always non-streaming.
func (s *Server) handleGenerate(c echo.Context) error {
	req, err := bindChatRequest(c)
	if err != nil {
		return writeError(c, err)
	}
	req.Stream = false

	ctx := core.WithRequestID(c.Request().Context(), c.Response().Header().Get(echo.HeaderXRequestID))
	resp, err := s.router.ChatCompletion(ctx, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"text": resp.Text()})
}

// dispatch runs the shared completion pipeline for both response modes.
func (s *Server) dispatch(c echo.Context, req *core.ChatRequest) error {
	ctx := core.WithRequestID(c.Request().Context(), c.Response().Header().Get(echo.HeaderXRequestID))

	if req.Stream {
		stream, err := s.router.StreamChatCompletion(ctx, req)
		if err != nil {
			return writeError(c, err)
		}
		return streamResponse(c, stream)
	}

	resp, err := s.router.ChatCompletion(ctx, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// streamResponse copies SSE frames to the client, flushing after every
// read. Once the header is written the HTTP status is committed; later
// failures are carried in-band by the stream itself.
func streamResponse(c echo.Context, stream io.ReadCloser) error {
	defer func() {
		_ = stream.Close() //nolint:errcheck
	}()

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	buf := make([]byte, 4096)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if _, werr := c.Response().Write(buf[:n]); werr != nil {
				// Client went away; drain no further.
				return nil
			}
			c.Response().Flush()
		}
		if err != nil {
			return nil
		}
	}
}

// handleListModels merges the model catalogs of every configured backend.
func (s *Server) handleListModels(c echo.Context) error {
	resp, err := s.router.ListModels(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// handleHealth is the liveness endpoint.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
