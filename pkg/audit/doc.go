// Package audit records who changed access to what.
//
// Every mutating route of the HTTP API (logins, membership changes,
// invitations, tenant suspension, role edits, password resets) produces one
// Event once its handler returns, including requests refused with 401 or 403:
//
//	rec := audit.NewRecorder(audit.NewMultiLogger(audit.NewStore(db), audit.NewAppLogger(logger)), logger)
//	router.Handle("/tenants/{tenant_id}/suspend", rec.Handler(audit.Action{
//		Event:    audit.EventTenantSuspended,
//		Resource: audit.ResourceTenant,
//		IDVar:    "tenant_id",
//	}, authn.Handler(audit.Capture(perms.Require(req)(h)))))
//
// Events are stored in audit_events and read back with Store.Search. Old
// events are removed by the maintenance scheduler through Store.Purge, or
// through Archiver.Archive when they must be kept in object storage first.
package audit
