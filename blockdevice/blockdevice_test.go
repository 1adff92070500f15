package blockdevice

import "testing"

func TestLinuxAllocateSkipsInUse(t *testing.T) {
	a := NewLinux("/dev/xvd")
	first, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate() = %v", err)
	}
	if first != "/dev/xvdf" {
		t.Fatalf("first = %q, want /dev/xvdf", first)
	}

	second, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate() second = %v", err)
	}
	if second == first {
		t.Fatalf("second allocation reused %q", first)
	}
}

func TestLinuxRelease(t *testing.T) {
	a := NewLinux("/dev/xvd")
	first, _ := a.Allocate()
	a.Release(first)
	again, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate() after release = %v", err)
	}
	if again != first {
		t.Fatalf("Allocate() after release = %q, want reused %q", again, first)
	}
}

func TestNullAllocator(t *testing.T) {
	var n Null
	device, err := n.Allocate()
	if err != nil || device != "" {
		t.Fatalf("Null.Allocate() = (%q, %v), want (\"\", nil)", device, err)
	}
}
