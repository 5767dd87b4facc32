package items

import "testing"

func TestSplitStackable(t *testing.T) {
	taken, rest := Counted("coal", 5).Split(3)
	if taken.Quantity() != 3 || rest.Quantity() != 2 {
		t.Fatalf("unexpected split: taken=%+v rest=%+v", taken, rest)
	}
	if !taken.IsStackable() || !rest.IsStackable() {
		t.Fatalf("expected stackable halves")
	}

	taken, rest = Counted("coal", 2).Split(9)
	if taken.Quantity() != 2 || !rest.IsEmpty() {
		t.Fatalf("expected clamp: taken=%+v rest=%+v", taken, rest)
	}
}

func TestSplitInstancesKeepsOrder(t *testing.T) {
	s := Of("pick", Instance{ID: "a", Health: 100}, Instance{ID: "b", Health: 50}, Instance{ID: "c", Health: 10})
	taken, rest := s.Split(2)
	if got := taken.InstanceIDs(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected taken ids: %v", got)
	}
	if got := rest.InstanceIDs(); len(got) != 1 || got[0] != "c" {
		t.Fatalf("unexpected rest ids: %v", got)
	}
	if rest.IsStackable() {
		t.Fatalf("instances must stay non-stackable")
	}

	// The source slice must not be aliased by the halves.
	taken.Instances[0].Health = 1
	if s.Instances[0].Health != 100 {
		t.Fatalf("split aliased the source instances")
	}
}

func TestTotal(t *testing.T) {
	got := Total([]Stack{Counted("a", 2), Counted("a", 3), Of("b", Instance{ID: "x"}), Counted("c", 0)})
	if got["a"] != 5 || got["b"] != 1 {
		t.Fatalf("unexpected totals: %v", got)
	}
	if _, ok := got["c"]; ok {
		t.Fatalf("expected empty stack skipped")
	}
}
