package models

import "testing"

func TestNormalizeWorkoutTime(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"early morning", "05:00"},
		{"Morning", "07:00"},
		{"afternoon", "14:00"},
		{"evening works best", "18:00"},
		{"night", "20:00"},
		{"Flexible", "07:00"},
		{"around 6:30 pm", "18:30"},
		{"6 am", "06:00"},
		{"12 pm", "12:00"},
		{"", "07:00"},
		{"whenever", "07:00"},
	}
	for _, tc := range cases {
		if got := NormalizeWorkoutTime(tc.in); got != tc.want {
			t.Errorf("NormalizeWorkoutTime(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseClock(t *testing.T) {
	hour, minute, err := ParseClock("18:30")
	if err != nil || hour != 18 || minute != 30 {
		t.Errorf("ParseClock(18:30) = %d:%d, %v", hour, minute, err)
	}
	for _, bad := range []string{"", "25:00", "10:75", "noon"} {
		if _, _, err := ParseClock(bad); err == nil {
			t.Errorf("ParseClock(%q) should fail", bad)
		}
	}
}

func TestComputeBMI(t *testing.T) {
	cases := []struct {
		weight string
		height string
		want   float64
	}{
		{"75kg", "180cm", 23.1},
		{"70 kg", "1.75m", 22.9},
		{"165 lbs", "5'9", 24.4},
	}
	for _, tc := range cases {
		got := ComputeBMI(tc.weight, tc.height)
		if got == nil {
			t.Errorf("ComputeBMI(%q, %q) = nil", tc.weight, tc.height)
			continue
		}
		if *got < tc.want-0.3 || *got > tc.want+0.3 {
			t.Errorf("ComputeBMI(%q, %q) = %.1f, want ~%.1f", tc.weight, tc.height, *got, tc.want)
		}
	}
	if got := ComputeBMI("heavy", "tall"); got != nil {
		t.Errorf("expected nil BMI for unparsable input, got %v", *got)
	}
}
