package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, Config{ServiceName: "chatcore", Environment: "test", Level: "debug"})

	log.Debug("hello", "k", 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "chatcore", entry["service"])
	assert.Equal(t, "test", entry["env"])
	assert.EqualValues(t, 1, entry["k"])
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, Config{Level: "warn"})

	log.Info("dropped")
	assert.Zero(t, buf.Len())

	log.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, Config{ServiceName: "chatcore", Format: "text"})

	log.Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "service=chatcore")
}
