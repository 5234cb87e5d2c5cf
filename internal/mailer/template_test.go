package mailer

import "testing"

func TestSubstitute_ReplacesKnownPlaceholders(t *testing.T) {
	body := "Hello {{name}}, your event is {{event}}."
	got := Substitute(body, map[string]string{"name": "Ada", "event": "RangeOps Con"})
	want := "Hello Ada, your event is RangeOps Con."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSubstitute_LeavesUnknownPlaceholdersLiteral(t *testing.T) {
	body := "Hello {{name}}, {{unknown}} stays as-is."
	got := Substitute(body, map[string]string{"name": "Ada"})
	want := "Hello Ada, {{unknown}} stays as-is."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSubstitute_NoEscaping(t *testing.T) {
	body := "{{html}}"
	got := Substitute(body, map[string]string{"html": "<b>bold</b> & <i>raw</i>"})
	want := "<b>bold</b> & <i>raw</i>"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSubstitute_EmptyVariablesReturnsBodyUnchanged(t *testing.T) {
	body := "no placeholders here"
	if got := Substitute(body, nil); got != body {
		t.Errorf("got %q, want %q", got, body)
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(&Template{Key: "invite", Subject: "You're invited, {{name}}", BodyHTML: "<p>Hi {{name}}</p>"})

	tmpl := r.Lookup("invite")
	if tmpl == nil {
		t.Fatal("expected template to be found")
	}

	subject, body := tmpl.Render(map[string]string{"name": "Ada"})
	if subject != "You're invited, Ada" {
		t.Errorf("unexpected subject: %q", subject)
	}
	if body != "<p>Hi Ada</p>" {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestRegistry_LookupMissingReturnsNil(t *testing.T) {
	r := NewRegistry()
	if tmpl := r.Lookup("missing"); tmpl != nil {
		t.Errorf("expected nil, got %+v", tmpl)
	}
}
