package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTapRecorder(t *testing.T) {
	var rec TapRecorder

	charged := testutil.ToFloat64(TapsChargedTotal)
	cents := testutil.ToFloat64(TapsChargedCents)
	rec.TapCharged(600)
	if got := testutil.ToFloat64(TapsChargedTotal) - charged; got != 1 {
		t.Fatalf("expected one charged tap, got %v", got)
	}
	if got := testutil.ToFloat64(TapsChargedCents) - cents; got != 600 {
		t.Fatalf("expected 600 cents, got %v", got)
	}

	blocked := testutil.ToFloat64(TapsRejectedTotal.WithLabelValues("card_blocked"))
	unknown := testutil.ToFloat64(TapsRejectedTotal.WithLabelValues("error"))
	rec.TapRejected("card_blocked")
	rec.TapRejected("")
	if got := testutil.ToFloat64(TapsRejectedTotal.WithLabelValues("card_blocked")) - blocked; got != 1 {
		t.Fatalf("expected one card_blocked rejection, got %v", got)
	}
	if got := testutil.ToFloat64(TapsRejectedTotal.WithLabelValues("error")) - unknown; got != 1 {
		t.Fatalf("empty reason must count as error, got %v", got)
	}

	dup := testutil.ToFloat64(TapsDuplicateTotal)
	rec.TapDuplicate()
	if got := testutil.ToFloat64(TapsDuplicateTotal) - dup; got != 1 {
		t.Fatalf("expected one duplicate, got %v", got)
	}
}
