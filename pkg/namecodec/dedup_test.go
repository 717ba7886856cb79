package namecodec

import "testing"

func TestParseDedupSuffix(t *testing.T) {
	cases := []struct {
		in       string
		wantBase string
		wantN    uint32
		wantOK   bool
	}{
		{"Foo~1", "Foo", 1, true},
		{"Foo~2", "Foo", 2, true},
		{"Foo~10", "Foo", 10, true},
		{"Foo", "", 0, false},
		{"Foo~0", "", 0, false},
		{"Foo~abc", "", 0, false},
		{"Foo~", "", 0, false},
		{"A_B~3", "A_B", 3, true},
		{"My Script~1", "My Script", 1, true},
	}
	for _, c := range cases {
		base, n, ok := ParseDedupSuffix(c.in)
		if ok != c.wantOK || (ok && (base != c.wantBase || n != c.wantN)) {
			t.Errorf("ParseDedupSuffix(%q) = (%q, %d, %v), want (%q, %d, %v)", c.in, base, n, ok, c.wantBase, c.wantN, c.wantOK)
		}
	}
}

func TestStripDedupSuffix(t *testing.T) {
	cases := map[string]string{
		"Foo~1": "Foo", "Foo~2": "Foo", "Foo~10": "Foo",
		"Foo": "Foo", "Foo~0": "Foo~0", "Foo~abc": "Foo~abc", "Foo~": "Foo~", "": "",
	}
	for in, want := range cases {
		if got := StripDedupSuffix(in); got != want {
			t.Errorf("StripDedupSuffix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildDedupName(t *testing.T) {
	one := uint32(1)
	two := uint32(2)
	if got := BuildDedupName("Foo", nil, "server.luau"); got != "Foo.server.luau" {
		t.Errorf("got %q", got)
	}
	if got := BuildDedupName("Foo", &one, "server.luau"); got != "Foo~1.server.luau" {
		t.Errorf("got %q", got)
	}
	if got := BuildDedupName("Foo", &two, "luau"); got != "Foo~2.luau" {
		t.Errorf("got %q", got)
	}
	if got := BuildDedupName("Foo", nil, ""); got != "Foo" {
		t.Errorf("got %q", got)
	}
	if got := BuildDedupName("Foo", &one, ""); got != "Foo~1" {
		t.Errorf("got %q", got)
	}
}

func TestComputeCleanupAction(t *testing.T) {
	t.Run("gap tolerant", func(t *testing.T) {
		action := ComputeCleanupAction("Foo", "", []string{"Foo", "Foo~2"}, false, "/parent")
		if action.Kind != CleanupNone {
			t.Errorf("got %+v", action)
		}
	})

	t.Run("group to one, directory", func(t *testing.T) {
		action := ComputeCleanupAction("Foo", "", []string{"Foo~1"}, true, "/parent")
		want := CleanupAction{Kind: CleanupRemoveSuffix, From: "/parent/Foo~1", To: "/parent/Foo"}
		if action != want {
			t.Errorf("got %+v, want %+v", action, want)
		}
	})

	t.Run("group to one, file", func(t *testing.T) {
		action := ComputeCleanupAction("Foo", "luau", []string{"Foo~1"}, true, "/parent")
		want := CleanupAction{Kind: CleanupRemoveSuffix, From: "/parent/Foo~1.luau", To: "/parent/Foo.luau"}
		if action != want {
			t.Errorf("got %+v, want %+v", action, want)
		}
	})

	t.Run("base deleted promote lowest", func(t *testing.T) {
		action := ComputeCleanupAction("Foo", "", []string{"Foo~1", "Foo~2"}, true, "/parent")
		want := CleanupAction{Kind: CleanupPromoteLowest, From: "/parent/Foo~1", To: "/parent/Foo"}
		if action != want {
			t.Errorf("got %+v, want %+v", action, want)
		}
	})

	t.Run("base deleted promote with gap", func(t *testing.T) {
		action := ComputeCleanupAction("Foo", "", []string{"Foo~2", "Foo~5"}, true, "/parent")
		want := CleanupAction{Kind: CleanupPromoteLowest, From: "/parent/Foo~2", To: "/parent/Foo"}
		if action != want {
			t.Errorf("got %+v, want %+v", action, want)
		}
	})

	t.Run("suffix deleted, group to one, already clean", func(t *testing.T) {
		action := ComputeCleanupAction("Foo", "", []string{"Foo"}, false, "/parent")
		if action.Kind != CleanupNone {
			t.Errorf("got %+v", action)
		}
	})

	t.Run("no remaining", func(t *testing.T) {
		action := ComputeCleanupAction("Foo", "", nil, false, "/parent")
		if action.Kind != CleanupNone {
			t.Errorf("got %+v", action)
		}
	})
}
