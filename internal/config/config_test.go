package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("POSTGRES_DSN", "")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, time.Minute, cfg.Escalation.SweepInterval)
	assert.Equal(t, []string{"mon", "tue", "wed", "thu", "fri"}, cfg.BusinessHours.Weekdays)
	assert.Equal(t, 256, cfg.Notification.QueueSize)
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/change")
	t.Setenv("ESCALATION_SWEEP_INTERVAL", "30s")
	t.Setenv("BUSINESS_HOURS_WEEKDAYS", "mon,sat")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 30*time.Second, cfg.Escalation.SweepInterval)
	assert.Equal(t, []string{"mon", "sat"}, cfg.BusinessHours.Weekdays)
}

func TestParseRejectsDriverWithoutConnection(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	t.Setenv("MONGO_URI", "")

	_, err := Parse()
	require.Error(t, err)

	t.Setenv("STORE_DRIVER", "cassandra")
	_, err = Parse()
	require.Error(t, err)
}
