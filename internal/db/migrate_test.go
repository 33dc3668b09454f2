package db

import (
	"testing"

	"github.com/memohai/deckcrm/internal/config"
)

func TestRunMigrateUnknownCommand(t *testing.T) {
	cfg := config.PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "crm",
		Password: "secret",
		Database: "deckcrm",
		SSLMode:  "disable",
	}
	if err := RunMigrate(nil, cfg, nil, "invalid", nil); err == nil {
		t.Fatal("expected error for unknown command")
	}
	if err := RunMigrate(nil, cfg, nil, "up", nil); err == nil {
		t.Fatal("expected error for missing migration source")
	}
}

func TestParseMigrateCommand(t *testing.T) {
	tests := []struct {
		command string
		args    []string
		want    MigrateCommand
		wantErr bool
	}{
		{command: "up", want: MigrateCommand{Name: "up"}},
		{command: "version", want: MigrateCommand{Name: "version"}},
		{command: "force", args: []string{"3"}, want: MigrateCommand{Name: "force", N: 3}},
		{command: "steps", args: []string{"-1"}, want: MigrateCommand{Name: "steps", N: -1}},
		{command: "force", wantErr: true},
		{command: "force", args: []string{"x"}, wantErr: true},
		{command: "steps", args: []string{"0"}, wantErr: true},
		{command: "sideways", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseMigrateCommand(tt.command, tt.args)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseMigrateCommand(%q, %v) error = %v, wantErr %v", tt.command, tt.args, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseMigrateCommand(%q, %v) = %+v, want %+v", tt.command, tt.args, got, tt.want)
		}
	}
}
