package logging

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestSetupRejectsUnknownLevel(t *testing.T) {
	_, err := Setup(Options{Level: "chatty"})
	require.Error(t, err)
}

func TestSetupWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anuva.log")
	closer, err := Setup(Options{Level: "debug", File: path, JSON: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		log.SetOutput(os.Stdout)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		log.SetLevel(log.InfoLevel)
	})

	log.WithField("session_id", "s1").Debug("file sink probe")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "file sink probe")
	require.Contains(t, string(data), `"session_id":"s1"`)
	require.Equal(t, log.DebugLevel, log.GetLevel())
}
