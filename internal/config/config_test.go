package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Scheduler.IntervalMS != 25000 {
		t.Fatalf("expected default interval 25000, got %d", cfg.Scheduler.IntervalMS)
	}
	if cfg.Scheduler.MinTranscriptChars != 60 {
		t.Fatalf("expected default min transcript chars 60, got %d", cfg.Scheduler.MinTranscriptChars)
	}
	if cfg.Recovery.RetentionHours != 24 {
		t.Fatalf("expected default retention 24h, got %d", cfg.Recovery.RetentionHours)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VETTA_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("VETTA_BUS_USERNAME", "alice")
	t.Setenv("VETTA_BUS_PASSWORD", "secret")
	t.Setenv("VETTA_SCHEDULER_INTERVAL_MS", "10000")
	t.Setenv("VETTA_SCHEDULER_MIN_TRANSCRIPT_CHARS", "120")
	t.Setenv("VETTA_QUESTIONS_MIN_WORD_FRACTION", "0.5")
	t.Setenv("VETTA_RECOVERY_PATH", "./tmp.db")
	t.Setenv("VETTA_RECOVERY_RETENTION_HOURS", "48")
	t.Setenv("VETTA_EVALUATOR_MODE", "ollama")
	t.Setenv("VETTA_EVALUATOR_ENDPOINT", "http://llm:11434")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Scheduler.IntervalMS != 10000 {
		t.Fatalf("expected interval override, got %d", cfg.Scheduler.IntervalMS)
	}
	if cfg.Scheduler.MinTranscriptChars != 120 {
		t.Fatalf("expected threshold override, got %d", cfg.Scheduler.MinTranscriptChars)
	}
	if cfg.Questions.MinWordFraction != 0.5 {
		t.Fatalf("expected fraction override, got %f", cfg.Questions.MinWordFraction)
	}
	if cfg.Recovery.Path != "./tmp.db" {
		t.Fatalf("expected recovery path override")
	}
	if cfg.Recovery.RetentionHours != 48 {
		t.Fatalf("expected retention override, got %d", cfg.Recovery.RetentionHours)
	}
	if cfg.Evaluator.Mode != "ollama" || cfg.Evaluator.Endpoint != "http://llm:11434" {
		t.Fatalf("expected evaluator override, got %+v", cfg.Evaluator)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Questions.MinWordFraction = 1.5
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for min_word_fraction > 1")
	}

	cfg = Default()
	cfg.Evaluator.Mode = "psychic"
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for unknown evaluator mode")
	}

	cfg = Default()
	cfg.Report.Mode = "http"
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for http report without endpoint")
	}
}
