package agent

import (
	"fmt"
	"testing"
)

func TestDeliveryTrackerCap(t *testing.T) {
	tracker := newDeliveryTracker(3)

	for i := 1; i <= 3; i++ {
		count, exhausted := tracker.observe("corr-1")
		if count != i {
			t.Errorf("delivery %d: count = %d", i, count)
		}
		if exhausted {
			t.Errorf("delivery %d: exhausted too early", i)
		}
	}

	_, exhausted := tracker.observe("corr-1")
	if !exhausted {
		t.Error("fourth delivery should exhaust a cap of 3")
	}
}

func TestDeliveryTrackerIndependentKeys(t *testing.T) {
	tracker := newDeliveryTracker(1)

	if _, exhausted := tracker.observe("corr-a"); exhausted {
		t.Error("first delivery of corr-a should not be exhausted")
	}
	if _, exhausted := tracker.observe("corr-b"); exhausted {
		t.Error("first delivery of corr-b should not be exhausted")
	}
	if _, exhausted := tracker.observe("corr-a"); !exhausted {
		t.Error("second delivery of corr-a should exhaust a cap of 1")
	}
}

func TestDeliveryTrackerForget(t *testing.T) {
	tracker := newDeliveryTracker(1)

	tracker.observe("corr-1")
	tracker.forget("corr-1")

	if _, exhausted := tracker.observe("corr-1"); exhausted {
		t.Error("forget should reset the count")
	}
}

func TestDeliveryTrackerDisabled(t *testing.T) {
	tracker := newDeliveryTracker(0)

	for i := 0; i < 100; i++ {
		if _, exhausted := tracker.observe("corr-1"); exhausted {
			t.Fatal("a cap of zero disables tracking")
		}
	}
}

func TestDeliveryTrackerClearsWhenFull(t *testing.T) {
	tracker := newDeliveryTracker(5)
	for i := 0; i < deliveryTrackerMaxKeys; i++ {
		tracker.seen[fmt.Sprintf("corr-%d", i)] = 1
	}

	count, _ := tracker.observe("corr-new")
	if count != 1 {
		t.Errorf("count after clear = %d, want 1", count)
	}
	if len(tracker.seen) != 1 {
		t.Errorf("tracker should hold only the new key, has %d", len(tracker.seen))
	}
}
