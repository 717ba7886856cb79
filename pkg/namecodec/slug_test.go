package namecodec

import (
	"testing"

	"github.com/rojo-rbx/rojo/pkg/middleware"
)

func TestNeedsSlugify(t *testing.T) {
	cases := map[string]bool{
		"Foo":        false,
		"":           true,
		" Foo":       true,
		"Foo ":       true,
		"Foo.":       true,
		"Fo<o":       true,
		"Foo~Bar":    true,
		"CON":        true,
		"con":        true,
		"foo.server": true,
		"foo.meta":   true,
		"My Script":  false,
	}
	for in, want := range cases {
		if got := NeedsSlugify(in); got != want {
			t.Errorf("NeedsSlugify(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Fo<o>":       "Fo_o_",
		" Foo":        "Foo",
		"Foo ":        "Foo",
		"Foo.":        "Foo",
		"CON":         "CON_",
		"foo.server":  "foo_server",
		"a.meta.server": "a.meta_server",
		"~~~":         "instance",
		"":            "instance",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDeduplicate(t *testing.T) {
	taken := map[string]struct{}{"foo": {}, "foo~1": {}}
	if got := Deduplicate("Foo", taken); got != "Foo~2" {
		t.Errorf("got %q", got)
	}
	if got := Deduplicate("Bar", taken); got != "Bar" {
		t.Errorf("got %q", got)
	}
}

func TestValidateFileName(t *testing.T) {
	if err := ValidateFileName("Foo Bar"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateFileName("Foo "); err == nil {
		t.Error("expected error for trailing space")
	}
	if err := ValidateFileName("CON"); err == nil {
		t.Error("expected error for reserved name")
	}
	if err := ValidateFileName("a/b"); err == nil {
		t.Error("expected error for forbidden char")
	}
}

func TestStripScriptSuffix(t *testing.T) {
	if got := StripScriptSuffix("MyScript.server"); got != "MyScript" {
		t.Errorf("got %q", got)
	}
	if got := StripScriptSuffix("MyScript"); got != "MyScript" {
		t.Errorf("got %q", got)
	}
}

func TestAdjacentMetaPath(t *testing.T) {
	got := AdjacentMetaPath("parent/Foo_Bar.server.luau")
	want := "parent/Foo_Bar.meta.json5"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNameForInst(t *testing.T) {
	taken := map[string]struct{}{}
	filename, needsMeta, dedupKey := NameForInst(middleware.ModuleScript, "Foo", taken)
	if filename != "Foo.luau" || needsMeta || dedupKey != "Foo" {
		t.Errorf("got (%q, %v, %q)", filename, needsMeta, dedupKey)
	}

	taken["foo"] = struct{}{}
	filename, needsMeta, dedupKey = NameForInst(middleware.ModuleScript, "Foo", taken)
	if filename != "Foo~1.luau" || !needsMeta || dedupKey != "Foo~1" {
		t.Errorf("got (%q, %v, %q)", filename, needsMeta, dedupKey)
	}

	filename, needsMeta, dedupKey = NameForInst(middleware.Dir, "Weird<Name>", taken)
	if filename != "Weird_Name_" || !needsMeta || dedupKey != "Weird_Name_" {
		t.Errorf("got (%q, %v, %q)", filename, needsMeta, dedupKey)
	}
}

func TestStripMiddlewareExtension(t *testing.T) {
	if got := StripMiddlewareExtension("Foo.server.luau", middleware.ServerScript); got != "Foo" {
		t.Errorf("got %q", got)
	}
	if got := StripMiddlewareExtension("Foo", middleware.Dir); got != "Foo" {
		t.Errorf("got %q", got)
	}
}

func TestSlugifyIdempotent(t *testing.T) {
	corpus := []string{
		"CON", "PRN", "a/b", "foo.server", " x", "x ", "", "~1",
		`<>:"/\|?*`, "foo.client.server", "My Script", "a.meta.server",
		"lpt9", "...", "   ", "\x00ctl", "trailing.", "nul",
	}
	for _, s := range corpus {
		once := Slugify(s)
		twice := Slugify(once)
		if once != twice {
			t.Errorf("Slugify not idempotent for %q: %q -> %q", s, once, twice)
		}
	}
}

func TestSlugifyChangesOnlyNamesThatNeedIt(t *testing.T) {
	corpus := []string{
		"CON", "PRN", "a/b", "foo.server", " x", "x ", "", "~1",
		`<>:"/\|?*`, "Foo", "My Script", "plain_name", "foo.bar",
	}
	for _, s := range corpus {
		slug := Slugify(s)
		if NeedsSlugify(s) && slug == s {
			t.Errorf("NeedsSlugify(%q) but Slugify left it unchanged", s)
		}
		if !NeedsSlugify(s) && slug != s {
			t.Errorf("!NeedsSlugify(%q) but Slugify changed it to %q", s, slug)
		}
		if err := ValidateFileName(slug); err != nil {
			t.Errorf("ValidateFileName(Slugify(%q)) = %v", s, err)
		}
	}
}

func TestDeduplicateGapTolerant(t *testing.T) {
	taken := map[string]struct{}{"foo": {}, "foo~1": {}, "foo~3": {}}
	if got := Deduplicate("Foo", taken); got != "Foo~2" {
		t.Errorf("got %q, want the smallest free suffix Foo~2", got)
	}
}
