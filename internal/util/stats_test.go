package util

import "testing"

// TestFormatBytesFixedWidth verifies every formatted value is exactly 8 chars.
func TestFormatBytesFixedWidth(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{100 * 1024, " 0.1 MiB"},
	}

	for _, tc := range testCases {
		got := formatBytes(tc.in)
		if got != tc.want {
			t.Errorf("formatBytes(%v) = %q, want %q", tc.in, got, tc.want)
		}
		if len(got) != 8 {
			t.Errorf("formatBytes(%v) has width %d, want 8", tc.in, len(got))
		}
	}
}

// TestStatsCounters verifies AddSent/AddRecv count both lines and bytes.
func TestStatsCounters(t *testing.T) {
	s := &stats{}
	s.AddSent(5)
	s.AddSent(7)
	s.AddRecv(3)

	if got := s.LinesSent.Load(); got != 2 {
		t.Errorf("LinesSent = %d, want 2", got)
	}
	if got := s.BytesSent.Load(); got != 12 {
		t.Errorf("BytesSent = %d, want 12", got)
	}
	if got := s.LinesRecv.Load(); got != 1 {
		t.Errorf("LinesRecv = %d, want 1", got)
	}
}
