package encoder

import "testing"

func TestAuxOmissionFirstFrameAlwaysSends(t *testing.T) {
	s := NewAuxOmissionState(0, 0)
	if !s.ShouldSendAux(HashAuxPlane([]byte{1, 2, 3}), 0) {
		t.Fatal("first frame must always send aux")
	}
}

func TestAuxOmissionIntervalForcesRefresh(t *testing.T) {
	s := NewAuxOmissionState(3, 0.5)
	hash := HashAuxPlane([]byte{1, 2, 3})
	s.RecordAuxSent(hash)

	// Same hash, no change: omitted twice, then forced on the third.
	for i := 0; i < 2; i++ {
		if s.ShouldSendAux(hash, 0) {
			t.Fatalf("iteration %d: expected omission before max interval", i)
		}
		s.RecordAuxOmitted()
	}
	if !s.ShouldSendAux(hash, 0) {
		t.Fatal("expected forced refresh at max_aux_interval")
	}
}

func TestAuxOmissionChangeThreshold(t *testing.T) {
	s := NewAuxOmissionState(100, 0.1)
	oldHash := HashAuxPlane([]byte{1, 2, 3})
	newHash := HashAuxPlane([]byte{9, 9, 9})
	s.RecordAuxSent(oldHash)

	if s.ShouldSendAux(newHash, 0.05) {
		t.Fatal("change below threshold must not trigger a send")
	}
	if !s.ShouldSendAux(newHash, 0.2) {
		t.Fatal("change above threshold must trigger a send")
	}
}

// TestAuxOmissionIgnoresMainIDR is the feedback-loop-avoidance property from
// §8/§9: nothing in this decision ever looks at whether main is an IDR
// frame. ShouldSendAux's signature itself enforces this (no IDR parameter
// exists) but this test documents the invariant explicitly so a future
// change that threads an IDR flag through gets caught by a reviewer.
func TestAuxOmissionIgnoresMainIDR(t *testing.T) {
	s := NewAuxOmissionState(100, 0.5)
	hash := HashAuxPlane([]byte{1, 2, 3})
	s.RecordAuxSent(hash)
	s.RecordAuxOmitted()

	// Unchanged hash, low magnitude, well within the interval: must omit
	// regardless of any hypothetical main-IDR condition, since no such
	// condition can even be expressed here.
	if s.ShouldSendAux(hash, 0) {
		t.Fatal("expected omission; main-IDR status must never influence this decision")
	}
}
