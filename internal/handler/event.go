package handler

import (
	"fmt"
	"log"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"upi-gateway/internal/stream"
)

const sseEvent = "update"

type sseEmitter struct {
	w *echo.Response
}

func (e *sseEmitter) Emit(s stream.Snapshot) error {
	data, err := sonic.Marshal(s)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "id: %s\nevent: %s\ndata: %s\n\n", uuid.NewString(), sseEvent, data); err != nil {
		return err
	}
	e.w.Flush()
	return nil
}

func (e *sseEmitter) Ping() error {
	if _, err := fmt.Fprint(e.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	e.w.Flush()
	return nil
}

// Events streams status updates for one request as server-sent events.
func (h *Handler) Events(c echo.Context) error {
	id := c.Param("id")

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	if err := h.streams.Run(c.Request().Context(), id, &sseEmitter{w: w}); err != nil {
		log.Printf("[INFO] Stream for %s ended: %v", id, err)
	}
	return nil
}
