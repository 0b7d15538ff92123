package scheduler

import (
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
		cron     string
	}{
		{name: "cron", raw: "*/15 * * * *", kind: SpecCron, source: "cron", cron: "*/15 * * * *"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, source: "cron", cron: "0 0 * * *"},
		{name: "descriptor", raw: "@hourly", kind: SpecCron, source: "cron", cron: "@hourly"},
		{name: "duration", raw: "15m", kind: SpecInterval, source: "duration", duration: 15 * time.Minute, cron: "@every 15m0s"},
		{name: "prefixed interval", raw: "interval:45s", kind: SpecInterval, source: "duration", duration: 45 * time.Second, cron: "@every 45s"},
		{name: "every prefix", raw: "every:00:15", kind: SpecInterval, source: "hhmm", duration: 15 * time.Minute, cron: "@every 15m0s"},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute, cron: "@every 1h30m0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Source != tt.source {
				t.Fatalf("Source = %s, want %s", got.Source, tt.source)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
			if got.CronSpec() != tt.cron {
				t.Fatalf("CronSpec = %q, want %q", got.CronSpec(), tt.cron)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "00:61", "00:00", "-5m", "cron:"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	valid := []Config{
		{},
		{Schedule: "*/5 * * * *", Timezone: "UTC"},
		{Schedule: "@hourly"},
		{Schedule: "30s"},
	}
	for _, c := range valid {
		if err := c.Validate(); err != nil {
			t.Fatalf("Validate(%+v) error: %v", c, err)
		}
	}
	invalid := []Config{
		{Schedule: "61 * * * *"},
		{Schedule: "cron:* * *"},
		{Schedule: "5m", Timezone: "Mars/Olympus"},
	}
	for _, c := range invalid {
		if err := c.Validate(); err == nil {
			t.Fatalf("expected error for %+v", c)
		}
	}
}
