package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComponentLoggerCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "propchain", true)

	log := Component("wallet")
	log.Debug().Str("address", "0xabc").Msg("session restored")

	out := buf.String()
	assert.Contains(t, out, "Logger initialized")
	assert.Contains(t, out, "session restored")
	assert.Contains(t, out, "component:wallet")
	assert.Contains(t, out, "service:propchain")
}

func TestInfoLevelHidesDebug(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "propchain", false)

	Debug().Msg("hidden")
	Info().Msg("visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}
