// Package webhook validates outbound integration subscriptions against
// the fixed event taxonomy.
//
// Validation is pure: persistence belongs to the caller, and nothing
// outside the closed taxonomy ever survives into a normalized payload.
package webhook

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	authkit "github.com/atlas-pt/authkit-go"
	"github.com/atlas-pt/authkit-go/audit"
	"github.com/atlas-pt/authkit-go/metrics"
	"github.com/go-playground/validator/v10"
)

// Taxonomy is the closed, process-wide set of subscribable event names:
// entity lifecycle, payment outcomes, scheduling lifecycle, completion,
// check-ins and achievement unlocks.
var Taxonomy = []string{
	"client.created", "client.updated", "client.deleted",
	"payment.created", "payment.completed", "payment.failed",
	"appointment.created", "appointment.updated", "appointment.cancelled",
	"workout.completed", "session.completed",
	"checkin.created",
	"achievement.unlocked",
}

// CreateInput is the raw payload for subscription creation.
type CreateInput struct {
	URL      string   `json:"url" validate:"required,url"`
	Events   []string `json:"events" validate:"required,min=1,dive,taxonomy"`
	IsActive *bool    `json:"isActive"`
}

// UpdateInput is the raw payload for subscription update. Nil fields are
// absent and left untouched by the caller; present fields obey the same
// rules as creation.
type UpdateInput struct {
	URL      *string  `json:"url"`
	Events   []string `json:"events"`
	IsActive *bool    `json:"isActive"`
}

// ValidationError reports per-field failures with enough detail to
// correct the request.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "webhook: invalid subscription: " + strings.Join(parts, "; ")
}

// Validator checks subscription payloads. Safe for concurrent use.
type Validator struct {
	validate *validator.Validate
	taxonomy map[string]bool
	metrics  *metrics.Metrics
	auditor  *audit.Logger
}

// Option configures the Validator.
type Option func(*Validator)

// WithMetrics counts each rejection per failing field.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Validator) { v.metrics = m }
}

// WithAudit emits an audit event for every rejected payload.
func WithAudit(a *audit.Logger) Option {
	return func(v *Validator) { v.auditor = a }
}

// New creates a Validator over the fixed Taxonomy.
func New(opts ...Option) *Validator {
	taxonomy := make(map[string]bool, len(Taxonomy))
	for _, ev := range Taxonomy {
		taxonomy[ev] = true
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("taxonomy", func(fl validator.FieldLevel) bool {
		return taxonomy[fl.Field().String()]
	})

	val := &Validator{validate: v, taxonomy: taxonomy}
	for _, o := range opts {
		o(val)
	}
	return val
}

// ValidateCreate checks a creation payload and returns the normalized
// subscription: trimmed URL, de-duplicated events in input order, active
// unless explicitly disabled.
func (val *Validator) ValidateCreate(in CreateInput) (authkit.Subscription, error) {
	in.URL = strings.TrimSpace(in.URL)

	if err := val.validate.Struct(in); err != nil {
		return authkit.Subscription{}, val.reject("create", val.fieldErrors(err, in.Events))
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return authkit.Subscription{
		URL:      in.URL,
		Events:   dedupe(in.Events),
		IsActive: active,
	}, nil
}

// ValidateUpdate checks an update payload. Every field is optional; a
// provided events array is still subject to the non-empty/taxonomy rule.
// Returns the input with present fields normalized.
func (val *Validator) ValidateUpdate(in UpdateInput) (UpdateInput, error) {
	fields := make(map[string]string)

	if in.URL != nil {
		trimmed := strings.TrimSpace(*in.URL)
		in.URL = &trimmed
		if err := val.validate.Var(trimmed, "required,url"); err != nil {
			fields["url"] = "must be a valid absolute URL"
		}
	}

	if in.Events != nil {
		if len(in.Events) == 0 {
			fields["events"] = "must contain at least one event"
		} else if unknown := val.unknownEvents(in.Events); len(unknown) > 0 {
			fields["events"] = fmt.Sprintf("unknown events: %s", strings.Join(unknown, ", "))
		} else {
			in.Events = dedupe(in.Events)
		}
	}

	if len(fields) > 0 {
		return UpdateInput{}, val.reject("update", &ValidationError{Fields: fields})
	}
	return in, nil
}

// reject records the rejection on the configured hooks before handing the
// error back.
func (val *Validator) reject(op string, verr *ValidationError) *ValidationError {
	if val.metrics != nil {
		for field := range verr.Fields {
			val.metrics.RecordWebhookRejection(field)
		}
	}
	if val.auditor != nil {
		val.auditor.Log(audit.Event{
			Action:  audit.ActionWebhookRejected,
			Result:  audit.ResultFailure,
			Details: op,
			Error:   verr.Error(),
		})
	}
	return verr
}

// fieldErrors maps validator failures onto per-field messages.
func (val *Validator) fieldErrors(err error, events []string) *ValidationError {
	fields := make(map[string]string)

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		fields["payload"] = err.Error()
		return &ValidationError{Fields: fields}
	}

	for _, fe := range verrs {
		switch {
		case strings.HasPrefix(fe.Namespace(), "CreateInput.url") || fe.Field() == "url":
			if fe.Tag() == "required" {
				fields["url"] = "is required"
			} else {
				fields["url"] = "must be a valid absolute URL"
			}
		case strings.HasPrefix(fe.Field(), "events") || strings.Contains(fe.Namespace(), "events"):
			switch fe.Tag() {
			case "required", "min":
				fields["events"] = "must contain at least one event"
			case "taxonomy":
				fields["events"] = fmt.Sprintf("unknown events: %s", strings.Join(val.unknownEvents(events), ", "))
			}
		}
	}
	if len(fields) == 0 {
		fields["payload"] = verrs.Error()
	}
	return &ValidationError{Fields: fields}
}

func (val *Validator) unknownEvents(events []string) []string {
	var unknown []string
	seen := make(map[string]bool)
	for _, ev := range events {
		if !val.taxonomy[ev] && !seen[ev] {
			unknown = append(unknown, ev)
			seen[ev] = true
		}
	}
	return unknown
}

// dedupe removes duplicate events preserving input order.
func dedupe(events []string) []string {
	seen := make(map[string]bool, len(events))
	out := make([]string, 0, len(events))
	for _, ev := range events {
		if !seen[ev] {
			seen[ev] = true
			out = append(out, ev)
		}
	}
	return out
}
