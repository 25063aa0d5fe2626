package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authhandler "findiff/internal/auth/handler"
	contenthandler "findiff/internal/content/handler"
	jwttoken "findiff/internal/jwt_token"
	kpihandler "findiff/internal/kpi/handler"
	"findiff/internal/platform/metrics"
	uphandler "findiff/internal/userprofile/handler"
	workflowhandler "findiff/internal/workflow/handler"
	"findiff/pkg/platform/httputil"
	"findiff/pkg/platform/middleware/admin"
	authmw "findiff/pkg/platform/middleware/auth"
	"findiff/pkg/platform/middleware/metadata"
	"findiff/pkg/platform/middleware/request"
	"findiff/pkg/platform/middleware/requesttime"
)

// newRouter mounts every module under /api. Public routes are login, refresh,
// health, metrics and stored media.
func newRouter(a *app) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(a.logger))
	r.Use(request.Logger(a.logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(metrics.LatencyMiddleware(a.metrics))

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	prefix := "/" + strings.Trim(a.cfg.Media.URLPrefix, "/")
	r.Handle(prefix+"/*", a.media.Handler())

	authH := authhandler.New(a.auth, a.logger)
	usersH := uphandler.New(a.users, a.logger)
	contentH := contenthandler.New(a.content, a.users, a.logger)
	kpiH := kpihandler.New(a.kpi, a.users, a.logger)
	workflowH := workflowhandler.New(a.workflow, a.users, a.logger, a.cfg.Media.MaxUploadBytes)

	r.Route("/api", func(r chi.Router) {
		r.Use(request.Timeout(a.cfg.Server.RequestTimeout))
		r.Use(request.ContentTypeJSON)

		authH.RegisterPublic(r)

		if a.cfg.Server.AdminToken != "" {
			r.Group(func(r chi.Router) {
				r.Use(admin.RequireAdminToken(a.cfg.Server.AdminToken, a.logger))
				usersH.RegisterAdmin(r)
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireAuth(jwttoken.NewJWTServiceAdapter(a.jwt), a.auth, a.logger))
			authH.Register(r)
			usersH.Register(r)
			contentH.Register(r)
			kpiH.Register(r)
			workflowH.Register(r)
		})
	})
	return r
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if failures := a.health(ctx); len(failures) > 0 {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "failures": failures})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
