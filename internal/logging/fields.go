package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a record for filtering (e.g. "expiry_triggered").
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldSessionID identifies one resident daemon process.
	FieldSessionID = "session_id"
	// FieldCacheKey is the hex key of a task cache entry.
	FieldCacheKey = "cache_key"
	// FieldCheck names an expiration check.
	FieldCheck = "check"
)
