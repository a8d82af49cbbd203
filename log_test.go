package taonet

import (
	"bytes"
	"strings"
	"testing"
)

func TestShouldParseLogLevels(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"trace", LevelTrace, false},
		{"DEBUG", LevelDebug, false},
		{" info ", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"critical", LevelCrit, false},
		{"off", LevelNone, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error %v, wantErr %t", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestShouldFilterSinksByLevel(t *testing.T) {
	t.Cleanup(ResetSinks)
	SetLevel(LevelNone)
	defer SetLevel(LevelInfo)

	var warn, trace bytes.Buffer
	AddSink(LevelWarn, &warn)
	AddSink(LevelTrace, &trace)

	logTracef("trace %d", 1)
	logInfof("info %d", 2)
	logWarnf("warn %d", 3)
	Log(LevelCrit, "crit 4")

	if s := warn.String(); strings.Contains(s, "trace 1") || strings.Contains(s, "info 2") {
		t.Fatalf("warn sink received lower levels:\n%s", s)
	}
	for _, want := range []string{"WARN", "warn 3", "CRIT", "crit 4"} {
		if !strings.Contains(warn.String(), want) {
			t.Errorf("warn sink missing %q:\n%s", want, warn.String())
		}
	}
	for _, want := range []string{"TRACE", "trace 1", "info 2", "warn 3"} {
		if !strings.Contains(trace.String(), want) {
			t.Errorf("trace sink missing %q:\n%s", want, trace.String())
		}
	}
	if !logEnabled(LevelTrace) {
		t.Errorf("logEnabled(TRACE) = false with a trace sink")
	}
}

func TestShouldDropSinksOnReset(t *testing.T) {
	SetLevel(LevelNone)
	defer SetLevel(LevelInfo)

	var buf bytes.Buffer
	AddSink(LevelTrace, &buf)
	ResetSinks()
	logErrorf("after reset")
	if buf.Len() != 0 {
		t.Fatalf("sink written after ResetSinks: %q", buf.String())
	}
	if logEnabled(LevelCrit) {
		t.Fatalf("logEnabled(CRIT) = true with every sink disabled")
	}
}
