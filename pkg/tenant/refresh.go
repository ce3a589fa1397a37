package tenant

// RefreshContext is one known tenant's security context, as enumerated by the
// upstream service for proactive cache warming. The wire shape matches the
// query engine's scheduled-refresh contract.
type RefreshContext struct {
	SecurityContext SecurityContext `json:"securityContext"`
}
