package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type endpoint struct {
	Method string            `json:"method"`
	Path   string            `json:"path"`
	Header map[string]string `json:"header,omitempty"`
	Body   map[string]string `json:"body,omitempty"`
	Query  map[string]string `json:"query,omitempty"`
}

var keyed = map[string]string{KeyHeader: "<merchant key>"}

var endpoints = []endpoint{
	{Method: http.MethodPost, Path: "/api/createKey", Body: map[string]string{"name": "<merchant name>", "vpa": "<merchant vpa>", "webhook": "<url (optional)>"}},
	{Method: http.MethodPost, Path: "/api/setWebhook", Header: keyed, Body: map[string]string{"webhook": "<url>"}},
	{Method: http.MethodPost, Path: "/api/deleteWebhook", Header: keyed},
	{Method: http.MethodPost, Path: "/api/createRequest", Header: keyed, Body: map[string]string{"amount": "<amount (optional)>"}},
	{Method: http.MethodGet, Path: "/api/getRequest", Header: keyed, Query: map[string]string{"id": "<request id>"}},
	{Method: http.MethodPost, Path: "/api/cancelRequest", Header: keyed, Body: map[string]string{"id": "<request id>"}},
	{Method: http.MethodPost, Path: "/api/expireRequest", Header: keyed, Body: map[string]string{"id": "<request id>"}},
	{Method: http.MethodGet, Path: "/api/allRequests", Header: keyed, Query: map[string]string{"page": "<page (optional)>"}},
	{Method: http.MethodPost, Path: "/api/sendUpdate", Header: keyed, Body: map[string]string{"note": "<note>", "amount": "<amount (optional)>"}},
	{Method: http.MethodGet, Path: "/event/:id"},
}

// Index lists the API surface.
func Index(c echo.Context) error {
	return c.JSON(http.StatusOK, endpoints)
}

func Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
