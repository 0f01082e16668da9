package core

import "testing"

func TestPlanKeepsDeclarationOrder(t *testing.T) {
	plan, err := NewScheduler().Plan(mustDefault(t))
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	build, publish := -1, -1
	for i, ps := range plan {
		if ps.Index != i {
			t.Fatalf("plan out of order at %d", i)
		}
		switch ps.Name {
		case "build":
			build = i
		case "publish":
			publish = i
		}
	}
	if build < 0 || publish <= build {
		t.Errorf("publish (%d) must come after build (%d)", publish, build)
	}
}
