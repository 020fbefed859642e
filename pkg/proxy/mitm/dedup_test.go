package mitm

import (
	"testing"
	"time"
)

func TestDedupTracker_DropsWithinWindow(t *testing.T) {
	d := newDedupTracker(50 * time.Millisecond)

	if d.shouldDrop("GET /a") {
		t.Fatal("first firing should not be dropped")
	}
	if !d.shouldDrop("GET /a") {
		t.Error("second firing within window should be dropped")
	}
}

func TestDedupTracker_AllowsAfterWindow(t *testing.T) {
	d := newDedupTracker(10 * time.Millisecond)

	if d.shouldDrop("GET /a") {
		t.Fatal("first firing should not be dropped")
	}
	time.Sleep(20 * time.Millisecond)
	if d.shouldDrop("GET /a") {
		t.Error("firing after window elapsed should not be dropped")
	}
}

func TestDedupTracker_DistinctKeys(t *testing.T) {
	d := newDedupTracker(time.Second)

	if d.shouldDrop("GET /a") {
		t.Fatal("first firing of /a should not be dropped")
	}
	if d.shouldDrop("GET /b") {
		t.Error("distinct key should not be dropped")
	}
}
