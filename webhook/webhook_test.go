package webhook_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/atlas-pt/authkit-go/webhook"
)

func fieldError(t *testing.T, err error, field string) string {
	t.Helper()
	var verr *webhook.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *webhook.ValidationError", err)
	}
	msg, ok := verr.Fields[field]
	if !ok {
		t.Fatalf("no failure reported for field %q: %v", field, verr.Fields)
	}
	return msg
}

func TestValidateCreate_Success(t *testing.T) {
	v := webhook.New()

	sub, err := v.ValidateCreate(webhook.CreateInput{
		URL:    "https://example.com/hook",
		Events: []string{"payment.completed"},
	})
	if err != nil {
		t.Fatalf("ValidateCreate() error: %v", err)
	}

	if sub.URL != "https://example.com/hook" {
		t.Errorf("URL = %q", sub.URL)
	}
	if !reflect.DeepEqual(sub.Events, []string{"payment.completed"}) {
		t.Errorf("Events = %v", sub.Events)
	}
	if !sub.IsActive {
		t.Error("IsActive should default to true")
	}
}

func TestValidateCreate_MissingURL(t *testing.T) {
	v := webhook.New()

	_, err := v.ValidateCreate(webhook.CreateInput{
		Events: []string{"payment.completed"},
	})
	fieldError(t, err, "url")
}

func TestValidateCreate_MalformedURL(t *testing.T) {
	v := webhook.New()

	_, err := v.ValidateCreate(webhook.CreateInput{
		URL:    "not-a-url",
		Events: []string{"payment.completed"},
	})
	fieldError(t, err, "url")
}

func TestValidateCreate_EmptyEvents(t *testing.T) {
	v := webhook.New()

	_, err := v.ValidateCreate(webhook.CreateInput{
		URL:    "https://example.com/hook",
		Events: []string{},
	})
	fieldError(t, err, "events")
}

func TestValidateCreate_UnknownEvent(t *testing.T) {
	v := webhook.New()

	_, err := v.ValidateCreate(webhook.CreateInput{
		URL:    "https://example.com/hook",
		Events: []string{"invoice.made.up"},
	})
	msg := fieldError(t, err, "events")
	if msg == "" {
		t.Error("expected a message naming the unknown event")
	}
}

func TestValidateCreate_MixedKnownAndUnknown(t *testing.T) {
	v := webhook.New()

	_, err := v.ValidateCreate(webhook.CreateInput{
		URL:    "https://example.com/hook",
		Events: []string{"payment.completed", "invoice.made.up"},
	})
	fieldError(t, err, "events")
}

func TestValidateCreate_DedupesEvents(t *testing.T) {
	v := webhook.New()

	sub, err := v.ValidateCreate(webhook.CreateInput{
		URL:    "https://example.com/hook",
		Events: []string{"client.created", "payment.completed", "client.created"},
	})
	if err != nil {
		t.Fatalf("ValidateCreate() error: %v", err)
	}
	want := []string{"client.created", "payment.completed"}
	if !reflect.DeepEqual(sub.Events, want) {
		t.Errorf("Events = %v, want %v (deduped, input order)", sub.Events, want)
	}
}

func TestValidateCreate_ExplicitInactive(t *testing.T) {
	v := webhook.New()
	inactive := false

	sub, err := v.ValidateCreate(webhook.CreateInput{
		URL:      "https://example.com/hook",
		Events:   []string{"checkin.created"},
		IsActive: &inactive,
	})
	if err != nil {
		t.Fatalf("ValidateCreate() error: %v", err)
	}
	if sub.IsActive {
		t.Error("IsActive = true, want false")
	}
}

func TestValidateUpdate_OnlyIsActive(t *testing.T) {
	v := webhook.New()
	inactive := false

	out, err := v.ValidateUpdate(webhook.UpdateInput{IsActive: &inactive})
	if err != nil {
		t.Fatalf("ValidateUpdate() error: %v", err)
	}
	if out.URL != nil || out.Events != nil {
		t.Errorf("absent fields were touched: %+v", out)
	}
	if out.IsActive == nil || *out.IsActive {
		t.Error("IsActive not carried through")
	}
}

func TestValidateUpdate_ProvidedEmptyEventsFails(t *testing.T) {
	v := webhook.New()

	_, err := v.ValidateUpdate(webhook.UpdateInput{Events: []string{}})
	fieldError(t, err, "events")
}

func TestValidateUpdate_UnknownEventFails(t *testing.T) {
	v := webhook.New()

	_, err := v.ValidateUpdate(webhook.UpdateInput{Events: []string{"invoice.made.up"}})
	fieldError(t, err, "events")
}

func TestValidateUpdate_MalformedURLFails(t *testing.T) {
	v := webhook.New()
	bad := "not-a-url"

	_, err := v.ValidateUpdate(webhook.UpdateInput{URL: &bad})
	fieldError(t, err, "url")
}

func TestValidateUpdate_ValidFields(t *testing.T) {
	v := webhook.New()
	url := "  https://example.com/hook2  "

	out, err := v.ValidateUpdate(webhook.UpdateInput{
		URL:    &url,
		Events: []string{"workout.completed", "workout.completed", "session.completed"},
	})
	if err != nil {
		t.Fatalf("ValidateUpdate() error: %v", err)
	}
	if *out.URL != "https://example.com/hook2" {
		t.Errorf("URL = %q, want trimmed", *out.URL)
	}
	want := []string{"workout.completed", "session.completed"}
	if !reflect.DeepEqual(out.Events, want) {
		t.Errorf("Events = %v, want %v", out.Events, want)
	}
}

func TestTaxonomyIsClosed(t *testing.T) {
	v := webhook.New()

	// Every taxonomy member validates; nothing else does.
	for _, ev := range webhook.Taxonomy {
		if _, err := v.ValidateCreate(webhook.CreateInput{
			URL:    "https://example.com/hook",
			Events: []string{ev},
		}); err != nil {
			t.Errorf("taxonomy event %q rejected: %v", ev, err)
		}
	}
	if _, err := v.ValidateCreate(webhook.CreateInput{
		URL:    "https://example.com/hook",
		Events: []string{"client.created "}, // trailing space is not a member
	}); err == nil {
		t.Error("near-miss event accepted")
	}
}
