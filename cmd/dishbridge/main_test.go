package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/nerrad567/starlink-mqtt-bridge/internal/audit"
	"github.com/nerrad567/starlink-mqtt-bridge/internal/field"
	"github.com/nerrad567/starlink-mqtt-bridge/internal/infrastructure/config"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	t.Setenv(configEnv, "")
	t.Setenv("DISHBRIDGE_TOPIC_PREFIX", "")
}

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"version"}, &out); err != nil {
		t.Fatalf("run(version) error = %v", err)
	}
	if got, want := out.String(), `{"version":"dev"}`+"\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestRunTopics(t *testing.T) {
	clearConfigEnv(t)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "defaults",
			args: []string{"topics"},
			want: []string{
				"taphome/starlink/status",
				"taphome/starlink/<grpc-field>",
				"taphome/starlink/all",
				"taphome/starlink/<grpc-field>/set",
				"taphome/starlink/<grpc-field>/ack",
			},
		},
		{
			name: "prefix and fields",
			args: []string{"topics", "-prefix", "/home/dish/", "-field", "dish_config.snow_melt_mode,device_info/id", "-field", "state"},
			want: []string{
				"home/dish/status",
				"home/dish/<grpc-field>",
				"home/dish/all",
				"home/dish/dish_config/snow_melt_mode/set",
				"home/dish/dish_config/snow_melt_mode/ack",
				"home/dish/device_info/id/set",
				"home/dish/device_info/id/ack",
				"home/dish/state/set",
				"home/dish/state/ack",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := run(context.Background(), tt.args, &out); err != nil {
				t.Fatalf("run() error = %v", err)
			}
			got := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
			if strings.Join(got, "\n") != strings.Join(tt.want, "\n") {
				t.Errorf("topics =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(tt.want, "\n"))
			}
		})
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	err := run(context.Background(), []string{"serve"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), `unknown command "serve"`) {
		t.Errorf("run(serve) error = %v", err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	clearConfigEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, []string{"-config", "/nonexistent/path/config.yaml"}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config error", err)
	}
}

func TestRun_InvalidFlags(t *testing.T) {
	clearConfigEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"qos out of range", []string{"run", "-qos", "5"}},
		{"non-positive interval", []string{"run", "-interval", "0s"}},
		{"stray argument", []string{"run", "extra"}},
		{"undefined flag", []string{"run", "-bogus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := run(context.Background(), tt.args, &bytes.Buffer{}); err == nil {
				t.Error("run() should fail")
			}
		})
	}
}

func TestOverridesApply(t *testing.T) {
	o := newOverrides("run", true)
	err := o.parse([]string{
		"-mqtt-host", "broker.lan",
		"-mqtt-port", "8883",
		"-retain=false",
		"-once",
		"-flush-timeout", "3s",
		"-field", "a,b",
		"-field", "c",
	})
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	cfg := config.Default()
	cfg.Dish.Address = "10.0.0.2:9200"
	cfg.Poll.Fields = []string{"from_file"}
	o.apply(cfg)

	if cfg.MQTT.Broker.Host != "broker.lan" || cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("broker = %s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Retain {
		t.Error("Retain = true, want false")
	}
	if !cfg.Poll.Once {
		t.Error("Once = false, want true")
	}
	if cfg.Poll.FlushTimeout != 3*time.Second {
		t.Errorf("FlushTimeout = %v, want 3s", cfg.Poll.FlushTimeout)
	}
	if got := strings.Join(cfg.Poll.Fields, "|"); got != "a,b|c" {
		t.Errorf("Fields = %q, want %q", got, "a,b|c")
	}
	if cfg.Dish.Address != "10.0.0.2:9200" {
		t.Errorf("Dish.Address = %q, unset flag must not override", cfg.Dish.Address)
	}
	if cfg.MQTT.QoS != 1 {
		t.Errorf("QoS = %d, unset flag must not override", cfg.MQTT.QoS)
	}
}

func TestRunAudit(t *testing.T) {
	clearConfigEnv(t)

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "audit.db")
	configPath := filepath.Join(dir, "config.yaml")
	configContent := "audit:\n  enabled: true\n  path: " + dbPath + "\n"
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	ctx := context.Background()
	cfg := config.Default()
	cfg.Audit.Path = dbPath
	db, err := openAudit(ctx, cfg.Audit)
	if err != nil {
		t.Fatalf("openAudit() error = %v", err)
	}
	repo := audit.NewSQLiteRepository(db.DB)
	applied := "on"
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []struct {
		path   string
		result field.Result
	}{
		{"dish_config.snow_melt_mode", field.Result{Requested: "on", Applied: &applied, Success: true}},
		{"dish_config.snow_melt_mode", field.Failed("sideways", errors.New("value error: no match"))},
		{"dish_config.power_save_mode", field.Result{Requested: "true", Applied: &applied, Success: true}},
	}
	for i, r := range records {
		if err := repo.RecordCommand(ctx, r.path, r.result, at.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordCommand() error = %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close error = %v", err)
	}

	tests := []struct {
		name      string
		args      []string
		wantTotal int
	}{
		{"all", nil, 3},
		{"by field", []string{"-field", "dish_config/snow_melt_mode"}, 2},
		{"failed only", []string{"-failed"}, 1},
		{"successes only", []string{"-failed=false"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			args := append([]string{"audit", "-config", configPath}, tt.args...)
			if err := run(ctx, args, &out); err != nil {
				t.Fatalf("run(audit) error = %v", err)
			}

			var res audit.ListResult
			if err := json.Unmarshal(out.Bytes(), &res); err != nil {
				t.Fatalf("decoding output: %v\n%s", err, out.String())
			}
			if res.Total != tt.wantTotal || len(res.Logs) != tt.wantTotal {
				t.Errorf("Total=%d len=%d, want %d", res.Total, len(res.Logs), tt.wantTotal)
			}
		})
	}
}

func TestRunAuditMigrateDown(t *testing.T) {
	clearConfigEnv(t)

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "audit.db")
	configPath := filepath.Join(dir, "config.yaml")
	configContent := "audit:\n  enabled: true\n  path: " + dbPath + "\n"
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	ctx := context.Background()
	cfg := config.Default()
	cfg.Audit.Path = dbPath
	db, err := openAudit(ctx, cfg.Audit)
	if err != nil {
		t.Fatalf("openAudit() error = %v", err)
	}
	if err := db.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close error = %v", err)
	}

	tests := []struct {
		name string
		want string
	}{
		{"latest migration", "rolled back audit migration 0001\n"},
		{"nothing left", "no audit migrations to roll back\n"},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if err := run(ctx, []string{"audit", "-config", configPath, "-migrate-down"}, &out); err != nil {
			t.Fatalf("%s: run(audit -migrate-down) error = %v", tt.name, err)
		}
		if out.String() != tt.want {
			t.Errorf("%s: output = %q, want %q", tt.name, out.String(), tt.want)
		}
	}

	db, err = openDatabase(cfg.Audit)
	if err != nil {
		t.Fatalf("openDatabase() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // test cleanup
	var n int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='command_audit'",
	).Scan(&n); err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	if n != 0 {
		t.Error("command_audit table still exists after rollback")
	}
}
