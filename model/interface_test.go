package model

import "testing"

func TestCloneInterfacesIndependent(t *testing.T) {
	orig := DefaultInterfaces()
	clone := CloneInterfaces(orig)
	if len(clone) != len(orig) {
		t.Fatalf("clone has %d interfaces, want %d", len(clone), len(orig))
	}
	clone[0].Name = "changed"
	clone[0].LinkAttributes.Loss = 99
	if orig[0].Name == "changed" || orig[0].LinkAttributes.Loss == 99 {
		t.Fatalf("changing the clone changed the original: %+v", orig[0])
	}
	if got := CloneInterfaces(nil); len(got) != 0 {
		t.Fatalf("CloneInterfaces(nil) = %v", got)
	}
}
