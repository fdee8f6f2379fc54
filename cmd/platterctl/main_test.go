package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCommands_FailBeforeConnecting(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "import without lists",
			args:    []string{"import-coupons", "--database-url", "postgres://unused"},
			wantErr: "need at least 2 files",
		},
		{
			name:    "import with bad value",
			args:    []string{"import-coupons", "--database-url", "postgres://unused", "--value", "ten", "a.gz", "b.gz"},
			wantErr: "parse value",
		},
		{
			name:    "seed with missing fixture",
			args:    []string{"seed", "--database-url", "postgres://unused", "--api-key-pepper", "p", "--file", "missing.yaml"},
			wantErr: "open fixture",
		},
		{
			name:    "seed without pepper",
			args:    []string{"seed", "--database-url", "postgres://unused"},
			wantErr: "api-key-pepper",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PLATTER_API_KEY_PEPPER", "")
			require.NoError(t, os.Unsetenv("PLATTER_API_KEY_PEPPER"))
			app := newApp(zaptest.NewLogger(t))
			err := app.Run(append([]string{"platterctl"}, tt.args...))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
