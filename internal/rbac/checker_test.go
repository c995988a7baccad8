package rbac

import "testing"

func TestDefaultPolicy(t *testing.T) {
	c := NewChecker(nil)

	tests := []struct {
		role, perm string
		want       bool
	}{
		{"employee", "exam:view", true},
		{"employee", "attempt:submit", true},
		{"employee", "exam:create", false},
		{"employee", "report:view", false},
		{"manager", "report:view", true},
		{"manager", "attempt:view-team", true},
		{"manager", "exam:publish", false},
		{"admin", "exam:publish", true},
		{"admin", "events:replay", true},
		{"", "exam:view", false},
		{"intern", "exam:view", false},
	}
	for _, tc := range tests {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Errorf("Has(%q, %q) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}

	if !c.Any("employee", "attempt:view-own", "attempt:view-team") {
		t.Error("Any must pass when one permission matches")
	}
	if c.Any("employee", "report:view", "exam:create") {
		t.Error("Any must fail when none match")
	}
}

func TestMatchPermWildcard(t *testing.T) {
	if !matchPerm("exam:*", "exam:publish") {
		t.Error("prefix wildcard must match")
	}
	if matchPerm("exam:*", "attempt:submit") {
		t.Error("prefix wildcard must not match another domain")
	}
}
