package history

import "testing"

func TestTouchAndRecent(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	if err := Touch("start", "/srv/tunman/staging"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := Touch("status", "/srv/tunman/staging"); err != nil {
		t.Fatalf("touch: %v", err)
	}

	got, err := Recent(0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Action != "status" {
		t.Fatalf("expected most recent action first, got %s", got[0].Action)
	}
}

func TestRecentCapsToLimit(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for i := 0; i < 5; i++ {
		if err := Touch("start", "/srv/tunman/staging"); err != nil {
			t.Fatalf("touch: %v", err)
		}
	}
	got, err := Recent(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(got))
	}
}
