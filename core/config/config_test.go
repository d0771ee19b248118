package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guard.toml")
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Roulette.Item != "diamond" || c.SpinDuration() != 5*time.Second || c.AnimationInterval() != 250*time.Millisecond {
		t.Fatalf("defaults not applied: %+v", c.Roulette)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if again.RPC.Address != c.RPC.Address || again.Backup.Cron != c.Backup.Cron || again.Rank.ExpiryIntervalSeconds != 30 {
		t.Fatalf("written defaults did not load back: %+v", again)
	}
}

func TestLoadNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guard.toml")
	doc := `
[Daemon]
Operators = ["Steve"]

[Roulette]
Item = " Emerald "
SpinSeconds = 0

[Backup]
Keep = 3
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Roulette.Item != "emerald" || c.Roulette.SpinSeconds != 5 {
		t.Fatalf("roulette = %+v", c.Roulette)
	}
	if len(c.Daemon.Operators) != 1 || c.Daemon.Operators[0] != "Steve" || c.Daemon.DataDirectory != "data" {
		t.Fatalf("daemon = %+v", c.Daemon)
	}
	if c.Backup.Keep != 3 || c.Backup.Cron != "*/30 * * * *" {
		t.Fatalf("backup = %+v", c.Backup)
	}
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Backup.Cron = "@hourly now"
	if c.Validate() == nil {
		t.Fatal("bad cron accepted")
	}
	c = Default()
	c.Backup.Keep = -1
	if c.Validate() == nil {
		t.Fatal("negative keep accepted")
	}
}
