package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestBuildDailySpec(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "08:30", want: "0 30 8 * * *"},
		{in: "00:00", want: "0 0 0 * * *"},
		{in: "23:59", want: "0 59 23 * * *"},
		{in: "24:00", wantErr: true},
		{in: "8", wantErr: true},
		{in: "aa:bb", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := BuildDailySpec(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("BuildDailySpec(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestScheduleIntervalRejectsNonPositive(t *testing.T) {
	s := New(time.UTC)
	if _, err := s.ScheduleInterval(0, func() {}); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

func TestScheduleIntervalSubSecondRuns(t *testing.T) {
	s := New(time.UTC)
	var calls atomic.Int32
	if _, err := s.ScheduleInterval(20*time.Millisecond, func() { calls.Add(1) }); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected job to run at least twice, ran %d times", calls.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
