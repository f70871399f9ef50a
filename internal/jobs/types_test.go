package jobs

import "testing"

func TestCanTransitionForwardOnly(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusRunning},
		{StatusPending, StatusFailed},
		{StatusRunning, StatusComplete},
		{StatusRunning, StatusFailed},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("CanTransition(%s, %s) = false, want true", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to Status }{
		// 後ろ向きの遷移
		{StatusRunning, StatusPending},
		{StatusComplete, StatusRunning},
		{StatusComplete, StatusPending},
		{StatusFailed, StatusRunning},
		// 終端状態からの遷移
		{StatusComplete, StatusFailed},
		{StatusFailed, StatusComplete},
		// runningを飛ばした完了や自己遷移
		{StatusPending, StatusComplete},
		{StatusPending, StatusPending},
		{StatusRunning, StatusRunning},
		{StatusComplete, StatusComplete},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("CanTransition(%s, %s) = true, want false", tc.from, tc.to)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusRunning.Terminal() {
		t.Fatal("pending/running must not be terminal")
	}
	if !StatusComplete.Terminal() || !StatusFailed.Terminal() {
		t.Fatal("complete/failed must be terminal")
	}
}
