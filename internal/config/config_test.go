package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("RESERVATION_EXPIRY_DAYS", "30")
	t.Setenv("TX_MAX_RETRIES", "3")

	cfg, err := Load("bg")
	require.NoError(t, err)
	assert.Equal(t, "bg", cfg.RunMode)
	assert.Equal(t, StoreBackendMemory, cfg.StoreBackend)
	assert.Equal(t, 30, cfg.ReservationExpiryDays)
	assert.Equal(t, 3, cfg.TxMaxRetries)
}

func TestLoad_MongoRequiresURI(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0")

	cfg, err := Load("api")
	require.NoError(t, err)
	assert.Equal(t, "mongodb://localhost:27017/?replicaSet=rs0", cfg.MongoURI)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"STORE_BACKEND":           "postgres",
		"RESERVATION_EXPIRY_DAYS": "0",
		"TX_MAX_RETRIES":          "-1",
		"REDIS_DB":                "x",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("STORE_BACKEND", "memory")
			t.Setenv(key, value)
			_, err := Load("all")
			assert.Error(t, err)
		})
	}
}
