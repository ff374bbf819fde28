package service

import (
	"testing"
	"time"
)

func TestParseDue(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, loc)

	tests := []struct {
		name    string
		in      string
		want    *time.Time
		wantErr bool
	}{
		{name: "empty", in: ""},
		{name: "none", in: "None"},
		{name: "dash", in: "-"},
		{name: "relative", in: "+30m", want: ptr(now.Add(30 * time.Minute))},
		{name: "date and time", in: "2026-01-11 18:45", want: ptr(time.Date(2026, 1, 11, 18, 45, 0, 0, loc))},
		{name: "date only", in: "2026-02-01", want: ptr(time.Date(2026, 2, 1, 0, 0, 0, 0, loc))},
		{name: "rfc3339", in: "2026-01-11T10:00:00Z", want: ptr(time.Date(2026, 1, 11, 10, 0, 0, 0, time.UTC))},
		{name: "garbage", in: "tomorrow", wantErr: true},
		{name: "bad relative", in: "+soon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDue(tt.in, now)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want == nil {
				if got != nil {
					t.Fatalf("expected no due date, got %d", *got)
				}
				return
			}
			if got == nil || *got != tt.want.UnixMilli() {
				t.Fatalf("ParseDue(%q) = %v, want %d", tt.in, got, tt.want.UnixMilli())
			}
		})
	}
}

func TestFormatDue(t *testing.T) {
	ms := time.Date(2026, 1, 11, 18, 45, 0, 0, time.UTC).UnixMilli()
	if got := FormatDue(ms, time.UTC); got != "2026-01-11 18:45" {
		t.Fatalf("FormatDue = %q", got)
	}
}
