package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"upi-gateway/domain"
	"upi-gateway/internal/payments"
	"upi-gateway/internal/stream"
)

const KeyHeader = "key"

const (
	msgInvalidKey     = "Invalid Merchant Key"
	msgNotFound       = "Request Not Found"
	msgSuccess        = "Success"
	msgAlreadySettled = "Request Already Settled"
	msgWebhookSet     = "Webhook Was Set"
	msgWebhookDeleted = "Webhook Was Deleted"
	msgServerError    = "Internal Server Error"
)

// Streamer runs one status stream to completion.
type Streamer interface {
	Run(ctx context.Context, requestID string, out stream.Emitter) error
}

type Handler struct {
	service payments.Service
	streams Streamer
}

func NewHandler(service payments.Service, streams Streamer) *Handler {
	return &Handler{service: service, streams: streams}
}

// New builds the echo instance with every route registered.
func New(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = JSONSerializer{}

	e.Use(middleware.Recover())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool { return c.Path() == "/healthz" },
		Format:  "[ACCESS] ${method} ${uri} ${status} ${latency_human}\n",
	}))

	e.GET("/", Index)
	e.GET("/healthz", Healthz)

	api := e.Group("/api")
	api.POST("/createKey", h.CreateKey)
	api.POST("/setWebhook", h.SetWebhook)
	api.POST("/deleteWebhook", h.DeleteWebhook)
	api.POST("/createRequest", h.CreateRequest)
	api.GET("/getRequest", h.GetRequest)
	api.POST("/cancelRequest", h.CancelRequest)
	api.POST("/expireRequest", h.ExpireRequest)
	api.GET("/allRequests", h.ListRequests)
	api.POST("/sendUpdate", h.SendUpdate)

	e.GET("/event/:id", h.Events)

	return e
}

type setWebhookRequest struct {
	Webhook string `json:"webhook"`
}

type createRequestRequest struct {
	Amount *string `json:"amount"`
}

type idRequest struct {
	ID string `json:"id"`
}

type sendUpdateRequest struct {
	Note   string  `json:"note"`
	Amount *string `json:"amount"`
}

type keyResponse struct {
	Key string `json:"key"`
}

func (h *Handler) CreateKey(c echo.Context) error {
	var req payments.CreateKeyInput
	if err := c.Bind(&req); err != nil {
		return err
	}

	key, err := h.service.CreateKey(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, keyResponse{Key: key})
}

func (h *Handler) SetWebhook(c echo.Context) error {
	var req setWebhookRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	if err := h.service.SetWebhook(c.Request().Context(), merchantKey(c), req.Webhook); err != nil {
		return writeError(c, err)
	}
	return c.String(http.StatusOK, msgWebhookSet)
}

func (h *Handler) DeleteWebhook(c echo.Context) error {
	if err := h.service.DeleteWebhook(c.Request().Context(), merchantKey(c)); err != nil {
		return writeError(c, err)
	}
	return c.String(http.StatusOK, msgWebhookDeleted)
}

func (h *Handler) CreateRequest(c echo.Context) error {
	var req createRequestRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	created, err := h.service.CreateRequest(c.Request().Context(), merchantKey(c), req.Amount)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, created)
}

func (h *Handler) GetRequest(c echo.Context) error {
	id := c.QueryParam("id")
	if id == "" {
		return c.String(http.StatusBadRequest, "missing 'id' query parameter")
	}

	view, err := h.service.GetRequest(c.Request().Context(), merchantKey(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) CancelRequest(c echo.Context) error {
	var req idRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	return ack(c, h.service.CancelRequest(c.Request().Context(), merchantKey(c), req.ID))
}

func (h *Handler) ExpireRequest(c echo.Context) error {
	var req idRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	return ack(c, h.service.ExpireRequest(c.Request().Context(), merchantKey(c), req.ID))
}

func (h *Handler) SendUpdate(c echo.Context) error {
	var req sendUpdateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	return ack(c, h.service.Confirm(c.Request().Context(), merchantKey(c), req.Note, req.Amount))
}

func (h *Handler) ListRequests(c echo.Context) error {
	page := 1
	if raw := c.QueryParam("page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 1 {
			return c.String(http.StatusBadRequest, "page must be a positive integer")
		}
		page = p
	}

	reqs, err := h.service.ListRequests(c.Request().Context(), merchantKey(c), page)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, reqs)
}

func merchantKey(c echo.Context) string {
	return c.Request().Header.Get(KeyHeader)
}

// ack answers a settle call. Settling an already settled request is
// acknowledged, not failed, so callers can retry safely.
func ack(c echo.Context, err error) error {
	if errors.Is(err, domain.ErrAlreadyTerminal) {
		return c.String(http.StatusOK, msgAlreadySettled)
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.String(http.StatusOK, msgSuccess)
}

func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidKey):
		return c.String(http.StatusBadRequest, msgInvalidKey)
	case errors.Is(err, domain.ErrNotFound):
		return c.String(http.StatusBadRequest, msgNotFound)
	case errors.Is(err, domain.ErrAlreadyTerminal):
		return c.String(http.StatusOK, msgAlreadySettled)
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidInput):
		return c.String(http.StatusBadRequest, err.Error())
	default:
		log.Printf("[ERROR] %s %s: %v", c.Request().Method, c.Path(), err)
		return c.String(http.StatusInternalServerError, msgServerError)
	}
}
