package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateUnitName(t *testing.T) {
	tests := []struct {
		name  string
		unit  string
		valid bool
	}{
		{"simple service", "node-agent.service", true},
		{"templated unit", "agent@exporter.service", true},
		{"underscores and digits", "node_agent_2.service", true},
		{"empty", "", false},
		{"shell metacharacters", "agent; rm -rf /", false},
		{"spaces", "node agent.service", false},
		{"path traversal", "../etc/passwd", false},
		{"over length", strings.Repeat("a", 300), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateUnitName(tt.unit)

			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errInvalidUnitName)
			}
		})
	}
}

func TestVerbsRejectInvalidUnit(t *testing.T) {
	mgr := NewSystemdManager()
	ctx := context.Background()

	assert.Error(t, mgr.Start(ctx, "bad unit"))
	assert.Error(t, mgr.Stop(ctx, ""))
	assert.Error(t, mgr.Restart(ctx, "a;b"))

	_, _, err := mgr.IsActive(ctx, "bad unit")
	assert.Error(t, err)

	_, err = mgr.UnitFilePath(ctx, "bad unit")
	assert.Error(t, err)
}
