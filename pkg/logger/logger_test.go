package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("Level", func(t *testing.T) {
		assert.Equal(t, logrus.DebugLevel, New(Options{Level: "debug"}).GetLevel())
		assert.Equal(t, logrus.InfoLevel, New(Options{Level: "loud"}).GetLevel())
	})

	t.Run("Rotating file receives JSON entries", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "server.log")
		log := New(Options{Level: "info", File: path})

		log.WithField("pnr", "0LZ3K9X2AB7QH4M2N8P5R1T6W9").Info("Booking created")

		raw, err := os.ReadFile(path)
		require.NoError(t, err)

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &entry))
		assert.Equal(t, "Booking created", entry["msg"])
		assert.Equal(t, "0LZ3K9X2AB7QH4M2N8P5R1T6W9", entry["pnr"])
	})
}
