package logging_test

import (
	"bytes"
	"testing"

	"github.com/jrsteele09/go-alert-web/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestSetupWriter(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	logging.SetupWriter(&buf, "warn", "PROD")

	log.Info().Msg("hidden")
	log.Warn().Str("component", "session").Msg("visible")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, `"component":"session"`)
	require.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestSetupWriterFallsBackToInfo(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	logging.SetupWriter(&buf, "loud", "PROD")
	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
