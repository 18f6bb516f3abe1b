package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const serviceCallsPrefix = "/api/v1/service-calls"

// Router wraps http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterHealth GET /healthz
func (r *Router) RegisterHealth() {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
}

// RegisterServiceCallRoutes UI command and query surface
func (r *Router) RegisterServiceCallRoutes(h *ServiceCallHandler) {
	r.Handle(serviceCallsPrefix, method(http.MethodGet, h.List))
	r.Handle(serviceCallsPrefix+"/alerts", method(http.MethodGet, h.Alerts))
	r.Handle(serviceCallsPrefix+"/count", method(http.MethodGet, h.Count))
	r.Handle(serviceCallsPrefix+"/accept", method(http.MethodPost, h.Accept))
	r.Handle(serviceCallsPrefix+"/accept-all", method(http.MethodPost, h.AcceptAll))
	r.Handle(serviceCallsPrefix+"/clear", method(http.MethodPost, h.Clear))
	r.Handle(serviceCallsPrefix+"/clear-active", method(http.MethodPost, h.ClearActive))
	r.Handle(serviceCallsPrefix+"/refresh", method(http.MethodPost, h.Refresh))
	r.Handle(serviceCallsPrefix+"/export", method(http.MethodGet, h.Export))
	r.Handle(serviceCallsPrefix+"/ledger", method(http.MethodGet, h.Ledger))

	// {id}/hide
	r.Handle(serviceCallsPrefix+"/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, serviceCallsPrefix+"/")
		id, action, ok := strings.Cut(rest, "/")
		if !ok || action != "hide" || id == "" {
			writeJSON(w, http.StatusNotFound, Fail("not found"))
			return
		}
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Hide(w, req, id)
	})
}

func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != m {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}
