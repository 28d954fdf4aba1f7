package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/homestead/pkg/audit"
	"github.com/platinummonkey/homestead/pkg/authz"
	"github.com/platinummonkey/homestead/pkg/httputil"
	"github.com/platinummonkey/homestead/pkg/observability"
	"github.com/platinummonkey/homestead/pkg/rbac"
)

// AuditHandlers serves the audit trail
type AuditHandlers struct {
	store *audit.Store
}

// NewAuditHandlers creates a new audit handlers instance
func NewAuditHandlers(store *audit.Store) *AuditHandlers {
	return &AuditHandlers{store: store}
}

// RegisterRoutes registers audit routes
func (h *AuditHandlers) RegisterRoutes(router *mux.Router, g *guard) {
	router.Handle("/tenants/{tenant_id}/audit",
		g.require(authz.Requirement{Permissions: []string{rbac.PermAuditView}}, h.tenantEvents)).Methods(http.MethodGet)
	router.Handle("/audit",
		g.require(authz.Requirement{Permissions: []string{rbac.PermPlatformAuditView}, Platform: true}, h.allEvents)).Methods(http.MethodGet)
}

// tenantEvents handles GET /tenants/{tenant_id}/audit
func (h *AuditHandlers) tenantEvents(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	filter, ok := parseAuditFilter(w, r)
	if !ok {
		return
	}
	filter.TenantID = &tenantID
	h.search(w, r, filter)
}

// allEvents handles GET /audit[?tenant_id=]
func (h *AuditHandlers) allEvents(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseAuditFilter(w, r)
	if !ok {
		return
	}
	tenantID, err := httputil.ParseOptionalID("tenant_id", r.URL.Query().Get("tenant_id"))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	filter.TenantID = tenantID
	h.search(w, r, filter)
}

func (h *AuditHandlers) search(w http.ResponseWriter, r *http.Request, filter audit.SearchFilter) {
	format, err := audit.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	filter = filter.Normalize()
	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("audit search failed")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	switch format {
	case audit.FormatCSV, audit.FormatNDJSON:
		w.Header().Set("Content-Type", format.ContentType())
		w.WriteHeader(http.StatusOK)
		write := audit.WriteCSV
		if format == audit.FormatNDJSON {
			write = audit.WriteNDJSON
		}
		if err := write(w, events); err != nil {
			observability.FromContext(r.Context()).WithError(err).Error("audit export failed")
		}
	default:
		_ = httputil.WriteJSON(w, http.StatusOK, AuditEventsResponse{
			Events: events,
			Limit:  filter.Limit,
			Offset: filter.Offset,
		})
	}
}

// parseAuditFilter reads actor_id, event_type (repeatable), status, since,
// until, limit and offset
func parseAuditFilter(w http.ResponseWriter, r *http.Request) (audit.SearchFilter, bool) {
	q := r.URL.Query()
	var filter audit.SearchFilter

	actorID, err := httputil.ParseOptionalID("actor_id", q.Get("actor_id"))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return filter, false
	}
	filter.ActorID = actorID

	for _, t := range q["event_type"] {
		filter.EventTypes = append(filter.EventTypes, audit.EventType(t))
	}

	if raw := q.Get("status"); raw != "" {
		switch s := audit.Status(raw); s {
		case audit.StatusSuccess, audit.StatusFailure, audit.StatusDenied:
			filter.Status = s
		default:
			httputil.WriteBadRequest(w, "invalid status filter: "+raw)
			return filter, false
		}
	}

	for key, dest := range map[string]**time.Time{"since": &filter.Since, "until": &filter.Until} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid "+key+": expected RFC 3339 time")
			return filter, false
		}
		*dest = &t
	}

	for key, dest := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteBadRequest(w, "invalid "+key+": "+raw)
			return filter, false
		}
		*dest = n
	}
	return filter, true
}
