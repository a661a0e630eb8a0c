package backend

import (
	"strings"
	"testing"
	"time"

	"splitledger/internal/config"
)

func TestFromAppConfig(t *testing.T) {
	appCfg := &config.Config{
		Port:               "8081",
		DataBackend:        "memory",
		LedgerSnapshotPath: "/tmp/ledger.json",
		SettleEpsilon:      0.01,
		ExportBatchSize:    10,
		ExportInterval:     30 * time.Second,
	}

	cfg, err := FromAppConfig(appCfg)
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != MemoryBackend {
		t.Errorf("Type = %v, want memory", cfg.Type)
	}
	if cfg.SnapshotPath != "/tmp/ledger.json" {
		t.Errorf("SnapshotPath = %q", cfg.SnapshotPath)
	}
	if cfg.SettleEpsilon != 0.01 {
		t.Errorf("SettleEpsilon = %v", cfg.SettleEpsilon)
	}
}

func TestFromAppConfigRejectsUnknownBackend(t *testing.T) {
	_, err := FromAppConfig(&config.Config{DataBackend: "postgres"})
	if err == nil {
		t.Fatal("unknown backend accepted")
	}
	// The error names the valid choices so the operator can fix the env.
	for _, want := range GetBackendTypeStrings() {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention backend %q", err, want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "sqlite with path",
			config:  Config{Type: SQLiteBackend, SQLiteDBPath: "./test.db"},
			wantErr: false,
		},
		{
			name:    "sqlite without path",
			config:  Config{Type: SQLiteBackend},
			wantErr: true,
		},
		{
			name:    "memory without snapshot",
			config:  Config{Type: MemoryBackend},
			wantErr: false,
		},
		{
			name:    "unknown type",
			config:  Config{Type: BackendType("redis")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
