package realtime

import (
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	base := 2 * time.Second
	cases := []struct {
		n    int
		want time.Duration
	}{
		{-1, 0},
		{0, 0},
		{1, 2 * time.Second},
		{2, 10 * time.Second},
		{3, 30 * time.Second},
		{4, 30 * time.Second},
		{40, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := backoffDelay(tc.n, base); got != tc.want {
			t.Fatalf("backoffDelay(%d)=%v want=%v", tc.n, got, tc.want)
		}
	}
}
