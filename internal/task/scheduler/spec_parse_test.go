package scheduler

import (
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		in       string
		wantKind SpecKind
		wantStr  string
		wantErr  bool
	}{
		{in: "10s", wantKind: SpecInterval, wantStr: "@every 10s"},
		{in: " 2m30s ", wantKind: SpecInterval, wantStr: "@every 2m30s"},
		{in: "00:05", wantKind: SpecInterval, wantStr: "@every 5m0s"},
		{in: "every:30s", wantKind: SpecInterval, wantStr: "@every 30s"},
		{in: "interval:01:00", wantKind: SpecInterval, wantStr: "@every 1h0m0s"},
		{in: "*/1 * * * *", wantKind: SpecCron, wantStr: "*/1 * * * *"},
		{in: "@every 30s", wantKind: SpecCron, wantStr: "@every 30s"},
		{in: "cron:@hourly", wantKind: SpecCron, wantStr: "@hourly"},
		{in: "", wantErr: true},
		{in: "cron:", wantErr: true},
		{in: "soon", wantErr: true},
		{in: "500ms", wantErr: true},
		{in: "00:00", wantErr: true},
		{in: "01:75", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ps, err := ParseSchedule(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseSchedule(%q) = %+v, want error", tt.in, ps)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSchedule(%q): %v", tt.in, err)
			}
			if ps.Kind != tt.wantKind || ps.String() != tt.wantStr {
				t.Fatalf("ParseSchedule(%q) = %v %q, want %v %q", tt.in, ps.Kind, ps.String(), tt.wantKind, tt.wantStr)
			}
		})
	}
}

func TestCompileNext(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sched, _, err := Compile("10s")
	if err != nil {
		t.Fatal(err)
	}
	if got := sched.Next(base); !got.Equal(base.Add(10 * time.Second)) {
		t.Fatalf("interval next = %v", got)
	}

	sched, _, err = Compile("*/5 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	if got := sched.Next(base.Add(time.Minute)); !got.Equal(base.Add(5 * time.Minute)) {
		t.Fatalf("cron next = %v", got)
	}

	if _, _, err := Compile("61 * * * *"); err == nil {
		t.Fatal("invalid cron should fail to compile")
	}
}
