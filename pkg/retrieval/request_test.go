package retrieval

import "testing"

func TestStatusAdvance(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusUnsubmitted, StatusSubmitted},
		{StatusUnsubmitted, StatusCompleted},
		{StatusSubmitted, StatusCompleted},
		{StatusSubmitted, StatusFailed},
	}
	for _, tc := range allowed {
		got, err := tc.from.Advance(tc.to)
		if err != nil {
			t.Fatalf("%s -> %s must be allowed: %v", tc.from, tc.to, err)
		}
		if got != tc.to {
			t.Fatalf("%s -> %s returned %s", tc.from, tc.to, got)
		}
	}

	forbidden := []struct{ from, to Status }{
		{StatusSubmitted, StatusUnsubmitted},
		{StatusCompleted, StatusSubmitted},
		{StatusCompleted, StatusFailed},
		{StatusFailed, StatusCompleted},
		{StatusFailed, StatusSubmitted},
		{StatusUnsubmitted, StatusFailed},
	}
	for _, tc := range forbidden {
		got, err := tc.from.Advance(tc.to)
		if err == nil {
			t.Fatalf("%s -> %s must be rejected", tc.from, tc.to)
		}
		if got != tc.from {
			t.Fatalf("rejected transition changed status to %s", got)
		}
	}
}

func TestStatusAdvanceSameStatus(t *testing.T) {
	for _, s := range []Status{StatusSubmitted, StatusCompleted} {
		got, err := s.Advance(s)
		if err != nil {
			t.Fatalf("%s -> %s must be a no-op: %v", s, s, err)
		}
		if got != s {
			t.Fatalf("no-op transition returned %s", got)
		}
	}
}
