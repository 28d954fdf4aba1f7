package audit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/homestead/pkg/contextkeys"
	"github.com/platinummonkey/homestead/pkg/middleware"
	"github.com/platinummonkey/homestead/pkg/observability"
)

// TenantVar is the route variable holding the tenant id
const TenantVar = "tenant_id"

// Action describes what an audited route does
type Action struct {
	Event    EventType
	Resource ResourceType
	// IDVar names the route variable holding the resource id; empty for none
	IDVar string
}

// Recorder writes one audit event per audited request once the handler returns
type Recorder struct {
	logger Logger
	app    *observability.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder. Write failures are logged to app and never
// reach the client.
func NewRecorder(logger Logger, app *observability.Logger) *Recorder {
	if logger == nil {
		logger = NopLogger{}
	}
	if app == nil {
		app = observability.NopLogger()
	}
	return &Recorder{
		logger: logger,
		app:    app,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the recorder clock
func (rec *Recorder) WithClock(now func() time.Time) *Recorder {
	rec.now = now
	return rec
}

// responseWriter captures the status code written by a handler
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Handler audits next as action. It must wrap authentication so denials are
// recorded too.
func (rec *Recorder) Handler(action Action, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		// The inner middleware attaches the principal to its own request copy
		capture := &captured{}
		next.ServeHTTP(wrapped, r.WithContext(withCapture(r.Context(), capture)))

		event := &Event{
			OccurredAt:   rec.now(),
			EventType:    action.Event,
			Status:       StatusForCode(wrapped.statusCode),
			ResourceType: action.Resource,
			RequestID:    observability.GetRequestID(r.Context()),
			IPAddress:    middleware.ClientIP(r),
			Method:       r.Method,
			Path:         r.URL.Path,
			StatusCode:   wrapped.statusCode,
		}
		if action.IDVar != "" {
			event.ResourceID = mux.Vars(r)[action.IDVar]
		}
		event.ActorID = capture.actorID
		event.TenantID = capture.tenantID
		if event.TenantID == nil {
			if id, err := strconv.ParseInt(mux.Vars(r)[TenantVar], 10, 64); err == nil {
				event.TenantID = &id
			}
		}

		if err := rec.logger.Log(r.Context(), event); err != nil {
			rec.app.WithError(err).WithFields(map[string]interface{}{
				"event_type": string(action.Event),
				"request_id": event.RequestID,
			}).Error("failed to record audit event")
		}
	})
}

// Capture copies the principal and asserted tenant from an inner request into
// the enclosing Recorder. Install it after authentication and before the
// permission check so denied requests keep their actor.
func Capture(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, ok := r.Context().Value(captureKey{}).(*captured); ok {
			if p := middleware.GetPrincipal(r); p != nil {
				id := p.UserID()
				c.actorID = &id
			}
			if tenantID, ok := contextkeys.GetTenantID(r.Context()); ok {
				c.tenantID = &tenantID
			}
		}
		next.ServeHTTP(w, r)
	})
}

type captureKey struct{}

type captured struct {
	actorID  *int64
	tenantID *int64
}

func withCapture(ctx context.Context, c *captured) context.Context {
	return context.WithValue(ctx, captureKey{}, c)
}
