package controlplane

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestCancelCommandKeepsKeysOffArgv(t *testing.T) {
	cmd := cancelCommand(context.Background(), "/usr/local/bin/aster-vault-bot", "api-key-0123456789", "secret-0123456789", "CRVUSDT")

	want := []string{"/usr/local/bin/aster-vault-bot", "cancel", "CRVUSDT"}
	if !slices.Equal(cmd.Args, want) {
		t.Errorf("Expected args %v, got %v", want, cmd.Args)
	}
	for _, arg := range cmd.Args {
		if strings.Contains(arg, "api-key") || strings.Contains(arg, "secret") {
			t.Errorf("Expected no credentials in args, got %q", arg)
		}
	}
	if !slices.Contains(cmd.Env, "VAULT_API_KEY=api-key-0123456789") {
		t.Error("Expected VAULT_API_KEY in the child environment")
	}
	if !slices.Contains(cmd.Env, "VAULT_SECRET_KEY=secret-0123456789") {
		t.Error("Expected VAULT_SECRET_KEY in the child environment")
	}
}

func TestExecCancellerExitCode(t *testing.T) {
	// stands in for the binary: succeeds only when the keys arrive via env
	script := filepath.Join(t.TempDir(), "cancel.sh")
	body := `#!/bin/sh
[ "$1" = cancel ] && [ "$#" -eq 2 ] || exit 2
[ "$VAULT_API_KEY" = k ] && [ "$VAULT_SECRET_KEY" = s ] || exit 1
echo "cancelled $2"
`
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	c := &ExecCanceller{Binary: script}
	tests := []struct {
		name   string
		key    string
		secret string
		want   int
	}{
		{"keys passed", "k", "s", 0},
		{"wrong keys", "k", "other", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := c.CancelOrders(context.Background(), tt.key, tt.secret, "CRVUSDT")
			if err != nil {
				t.Fatalf("CancelOrders() error = %v", err)
			}
			if code != tt.want {
				t.Errorf("Expected exit %d, got %d", tt.want, code)
			}
		})
	}
}
