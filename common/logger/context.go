package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within
// a context. Fields flow through context enrichment so business context
// (tenant_id, case_id, event_id, ...) shows up on every log statement without
// threading it through call sites.
type LogFields struct {
	TenantID   *string // Tenant owning the case event
	CaseID     *string // Case the event belongs to
	EventID    *string // Case event id
	WorkflowID *string // Workflow being evaluated or dispatched
	MessageID  *string // Redis stream message id
	EventType  *string // Case event type (e.g. "severity_changed")
	Component  string  // Component name (e.g. "automation.worker")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking
// precedence. Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.TenantID != nil {
		result.TenantID = next.TenantID
	}
	if next.CaseID != nil {
		result.CaseID = next.CaseID
	}
	if next.EventID != nil {
		result.EventID = next.EventID
	}
	if next.WorkflowID != nil {
		result.WorkflowID = next.WorkflowID
	}
	if next.MessageID != nil {
		result.MessageID = next.MessageID
	}
	if next.EventType != nil {
		result.EventType = next.EventType
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{EventID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}
