package main

import (
	"context"
	"testing"

	"github.com/teslashibe/go-focus/internal/config"
	"github.com/teslashibe/go-focus/internal/log"
)

func TestServeFlagsOverrideConfig(t *testing.T) {
	cmd := newServeCmd()
	if err := cmd.Flags().Set("port", "7001"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("eeg", "none"); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Server.Host = "0.0.0.0"

	var f serveFlags
	f.port, f.eeg = 7001, "none"
	if err := f.apply(cmd, &cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.Server.Port != 7001 || cfg.EEG.Source != config.EEGNone {
		t.Errorf("flags not applied: port=%d eeg=%q", cfg.Server.Port, cfg.EEG.Source)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("unset --host overwrote config: %q", cfg.Server.Host)
	}
}

func TestServeFlagsValidate(t *testing.T) {
	cmd := newServeCmd()
	cmd.Flags().Set("eeg", "bluetooth")

	cfg := config.Default()
	f := serveFlags{eeg: "bluetooth"}
	if err := f.apply(cmd, &cfg); err == nil {
		t.Error("invalid --eeg accepted")
	}
}

func TestOpenEEG(t *testing.T) {
	cfg := config.Default()

	cfg.EEG.Source = config.EEGNone
	src, err := openEEG(context.Background(), cfg, log.Discard())
	if err != nil || src != nil {
		t.Errorf("none: src=%v err=%v", src, err)
	}

	cfg.EEG.Source = config.EEGSynthetic
	src, err = openEEG(context.Background(), cfg, log.Discard())
	if err != nil || src == nil {
		t.Fatalf("synthetic: src=%v err=%v", src, err)
	}
	defer src.Close()
	if src.SampleRate() != 256 {
		t.Errorf("SampleRate = %v", src.SampleRate())
	}
}
