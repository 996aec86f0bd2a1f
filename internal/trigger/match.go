package trigger

import (
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"caseflow.app/automation/internal/model"
)

// ResolveField walks a dot-separated path through nested maps. The second
// return value distinguishes "no value" from an explicit nil: it is false
// when a key is absent at any level or an intermediate value is not a map.
func ResolveField(fields map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var current any = fields
	for _, segment := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// NormalizeFilterValue collapses enumerated string types to their underlying
// string, normalizes lists element-wise, and passes everything else through.
func NormalizeFilterValue(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = NormalizeFilterValue(rv.Index(i).Interface())
		}
		return out
	default:
		return v
	}
}

// MatchesFilters evaluates a set of dot-path filters against a projected
// event. All entries must match; an empty filter set always matches. A list
// expectation matches when the resolved value is a member of the list.
func MatchesFilters(event map[string]any, filters map[string]any) bool {
	for path, expected := range filters {
		resolved, ok := ResolveField(event, path)
		if !ok {
			return false
		}
		actual := NormalizeFilterValue(resolved)
		switch want := NormalizeFilterValue(expected).(type) {
		case []any:
			if !containsValue(want, actual) {
				return false
			}
		default:
			if !reflect.DeepEqual(actual, want) {
				return false
			}
		}
	}
	return true
}

func containsValue(list []any, v any) bool {
	for _, candidate := range list {
		if reflect.DeepEqual(candidate, v) {
			return true
		}
	}
	return false
}

// ProjectEvent builds the shallow filterable mapping for a case event.
func ProjectEvent(ev *model.CaseEvent) map[string]any {
	var userID any
	if ev.UserID != nil {
		userID = ev.UserID.String()
	}
	return map[string]any{
		"type":       string(ev.Type),
		"data":       ev.Data,
		"user_id":    userID,
		"created_at": ev.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Matches decides whether a fine-grained trigger config fires for an event
// evaluated against the given workflow.
func Matches(cfg model.CaseWorkflowTriggerConfig, ev *model.CaseEvent, wf *model.Workflow) bool {
	if !cfg.Enabled {
		return false
	}
	if cfg.EventType != ev.Type {
		return false
	}
	if !MatchesFilters(ProjectEvent(ev), cfg.FieldFilters) {
		return false
	}
	return selfTriggerAllowed(cfg, ev, wf)
}

// selfTriggerAllowed enforces the feedback-loop guard. Absent or malformed
// provenance never blocks a trigger; only a well-formed wf_exec_id whose
// short workflow id matches the evaluated workflow requires AllowSelfTrigger.
func selfTriggerAllowed(cfg model.CaseWorkflowTriggerConfig, ev *model.CaseEvent, wf *model.Workflow) bool {
	execID, ok := ev.WorkflowExecID()
	if !ok {
		return true
	}
	shortID, _, found := strings.Cut(execID, ":")
	if !found {
		return true
	}
	if shortID != wf.ShortID {
		return true
	}
	return cfg.AllowSelfTrigger
}

// CoarseMatch is the cheap pre-filter over persisted trigger rows: the row
// must be online, subscribed to the event's type, and either carry no tag
// filters or share at least one tag with the case.
func CoarseMatch(tr *model.CaseTrigger, ev *model.CaseEvent, cs *model.Case) bool {
	if tr.Status != model.TriggerStatusOnline {
		return false
	}
	if !tr.ListensFor(ev.Type) {
		return false
	}
	return TagsMatch(tr.TagFilters, cs)
}

// TagsMatch reports whether a trigger's tag filters admit the case.
func TagsMatch(filters []uuid.UUID, cs *model.Case) bool {
	if len(filters) == 0 {
		return true
	}
	return cs.HasAnyTag(filters)
}
