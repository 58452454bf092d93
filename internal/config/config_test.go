package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FirstRunWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Timezone != "Asia/Seoul" || cfg.Schedule.Time != "07:00" || cfg.Matcher.Strategy != "pattern" {
		t.Errorf("defaults = %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if again.FetchTimeout != 15*time.Second || len(again.Offsets) != 4 || again.Ledger.Driver != "file" {
		t.Errorf("reloaded = %+v", again)
	}
}

func TestParse_ExpandsEnvironment(t *testing.T) {
	t.Setenv("LUNARALARM_TEST_TOKEN", "123:abc")
	t.Setenv("LUNARALARM_TEST_CALDAV_PASSWORD", "s3cret")

	cfg, err := Parse([]byte(`
timezone: Asia/Seoul
schedule:
  time: "09:30"
  run_on_start: true
offsets: [30, 7, 1, 0]
ics:
  - name: family
    url: https://nas.example.com/caldav/family.ics
    username: alice
    password: ${LUNARALARM_TEST_CALDAV_PASSWORD}
telegram:
  token: ${LUNARALARM_TEST_TOKEN}
  chat_id: "-1001"
fetch_timeout: 5s
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Telegram == nil || cfg.Telegram.Token != "123:abc" {
		t.Errorf("Telegram = %+v", cfg.Telegram)
	}
	if cfg.ICS[0].Password != "s3cret" || cfg.ICS[0].ID != "ics-1" {
		t.Errorf("ICS[0] = %+v", cfg.ICS[0])
	}
	if cfg.FetchTimeout != 5*time.Second {
		t.Errorf("FetchTimeout = %v", cfg.FetchTimeout)
	}
	h, m, err := cfg.Schedule.Clock()
	if err != nil || h != 9 || m != 30 || !cfg.Schedule.RunOnStart {
		t.Errorf("Clock() = %d:%d, %v", h, m, err)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Asia/Seoul" {
		t.Errorf("Location() = %v, %v", loc, err)
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad strategy", "matcher:\n  strategy: solar\n", "strategy"},
		{"bad clock", "schedule:\n  time: \"25:00\"\n", "time"},
		{"negative offset", "offsets: [0, -1]\n", "offsets"},
		{"bad timezone", "timezone: Mars/Olympus\n", "timezone"},
		{"ics without url", "ics:\n  - id: a\n", "url"},
		{"telegram without chat", "telegram:\n  token: x\n", "chat_id"},
		{"redis without addr", "ledger:\n  driver: redis\n", "redis.addr"},
		{"postgres without dsn", "ledger:\n  driver: postgres\n", "postgres_dsn"},
		{"unknown ledger", "ledger:\n  driver: sqlite\n", "driver"},
		{"bad log level", "log_level: verbose\n", "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestNormalize_FillsDefaults(t *testing.T) {
	cfg := &Config{Ledger: LedgerConfig{Driver: " FILE "}, Email: &EmailConfig{Host: "smtp.example.com"}}
	cfg.Normalize()

	if cfg.Ledger.Driver != "file" || cfg.Ledger.Path == "" {
		t.Errorf("Ledger = %+v", cfg.Ledger)
	}
	if cfg.Email.Port != 587 {
		t.Errorf("Email.Port = %d", cfg.Email.Port)
	}
	if cfg.Matcher.WindowDays != 400 || len(cfg.Matcher.Markers) != 2 {
		t.Errorf("Matcher = %+v", cfg.Matcher)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() after Normalize = %v", err)
	}
}
