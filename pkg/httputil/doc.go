// Package httputil provides the JSON request and response helpers shared by
// the HTTP handlers and middleware.
//
// Errors from the core services are written with WriteAuthError, which maps
// the error kind to a status code and echoes the reason code:
//
//	if err := svc.Disable(ctx, userID, tenantID); err != nil {
//		httputil.WriteAuthError(w, err)
//		return
//	}
//
// produces, for a membership that is already disabled:
//
//	HTTP/1.1 409 Conflict
//	{"error":"membership already disabled","reason":"membership_disabled"}
//
// Unclassified errors are written as an opaque 500 so storage details never
// reach clients.
package httputil
