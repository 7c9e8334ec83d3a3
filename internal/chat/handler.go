package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"chat-backend/internal/observability"
)

const (
	defaultTimeout  = 25 * time.Second
	maxRequestBytes = 1 << 20
)

var allowedRoles = map[string]bool{"user": true, "assistant": true, "system": true}

type Handler struct {
	upstream Upstream
	logger   *observability.Logger
	timeout  time.Duration
}

func NewHandler(upstream Upstream, logger *observability.Logger, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Handler{upstream: upstream, logger: logger, timeout: timeout}
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var request Request
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := decoder.Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateRequest(request); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// One deadline covers the upstream call and the relay.
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stream, err := h.upstream.Stream(ctx, request)
	if err != nil {
		err = classify(ctx, err)
		if errors.Is(err, ErrUpstreamTimeout) {
			h.logger.Warn("chat_upstream_timeout", map[string]any{"timeout_ms": h.timeout.Milliseconds()})
			writeError(w, http.StatusGatewayTimeout, "AI response timeout")
			return
		}
		if r.Context().Err() != nil {
			return
		}
		h.logger.Error("chat_upstream_failed", map[string]any{"error": err.Error()})
		sentry.CaptureException(err)
		writeError(w, http.StatusBadGateway, "AI error")
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	written, err := relay(w, stream)
	if err != nil {
		err = classify(ctx, err)
		h.logger.Warn("chat_stream_interrupted", map[string]any{
			"error":   err.Error(),
			"bytes":   written,
			"timeout": errors.Is(err, ErrUpstreamTimeout),
		})
	}
}

// relay copies the stream to w, flushing after every chunk so the client sees
// tokens as they arrive.
func relay(w http.ResponseWriter, stream io.Reader) (int64, error) {
	controller := http.NewResponseController(w)
	buf := make([]byte, 4<<10)
	var written int64

	for {
		n, readErr := stream.Read(buf)
		if n > 0 {
			m, err := w.Write(buf[:n])
			written += int64(m)
			if err != nil {
				return written, err
			}
			if err := controller.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return written, err
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrUpstreamTimeout, err)
	}
	return err
}

func validateRequest(request Request) error {
	if len(request.Messages) == 0 {
		return errors.New("messages are required")
	}
	for i, message := range request.Messages {
		if !allowedRoles[message.Role] {
			return fmt.Errorf("messages[%d].role must be user, assistant or system", i)
		}
		if strings.TrimSpace(message.Content) == "" {
			return fmt.Errorf("messages[%d].content is required", i)
		}
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
