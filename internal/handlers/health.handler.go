package handlers

import (
	"github.com/fasthttp/router"
	xhttp "github.com/sakaloan5-create/sms-platform/pkg/http"
)

type HealthChecker interface {
	Healthy() bool
}

type HealthHandler struct {
	checks []HealthChecker
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(checks ...HealthChecker) *HealthHandler {
	return &HealthHandler{
		checks: checks,
	}
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	for _, c := range h.checks {
		if !c.Healthy() {
			ctx.Response.SetStatusCode(503)
			ctx.Response.SetBodyString("degraded")
			return
		}
	}
	ctx.Response.SetBodyString("success")
}
