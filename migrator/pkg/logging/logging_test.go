package logging

import (
	"os"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestConsoleFormatter_NoColor(t *testing.T) {
	f := &ConsoleFormatter{NoColor: true}
	entry := log.NewEntry(log.New()).WithFields(log.Fields{"step": "snapshot", "run_id": "r1"})
	entry.Level = log.WarnLevel
	entry.Message = "slow snapshot"
	entry.Time = time.Date(2024, 3, 1, 10, 0, 5, 0, time.UTC)

	out, err := f.Format(entry)
	require.Nil(t, err)
	require.Equal(t, "[2024-03-01 10:00:05] WARNING slow snapshot run_id=r1 step=snapshot\n", string(out))
}

func TestConsoleFormatter_Color(t *testing.T) {
	f := &ConsoleFormatter{}
	entry := log.NewEntry(log.New())
	entry.Level = log.ErrorLevel
	entry.Message = "boom"

	out, err := f.Format(entry)
	require.Nil(t, err)
	require.Contains(t, string(out), "\x1b[")
	require.Contains(t, string(out), "boom")
}

func TestSetLogLevel(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)
	defer log.SetReportCaller(false)

	require.Nil(t, SetLogLevel("warn", false))
	require.Equal(t, log.WarnLevel, log.GetLevel())

	require.Nil(t, SetLogLevel("warn", true))
	require.Equal(t, log.DebugLevel, log.GetLevel())

	require.NotNil(t, SetLogLevel("loud", false))
}

func TestFileHook(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	hook, err := OpenFileHook(dir, started)
	require.Nil(t, err)
	require.True(t, strings.HasSuffix(hook.Path, "migration-20240301-100000.log"))

	logger := log.New()
	logger.SetOutput(&strings.Builder{})
	logger.AddHook(hook)
	logger.Info("snapshot ready")
	logger.Error("copy failed")
	require.Nil(t, hook.Close())

	data, err := os.ReadFile(hook.Path)
	require.Nil(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	require.Regexp(t, `^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[INFO\] snapshot ready$`, lines[0])
	require.Regexp(t, `\[ERROR\] copy failed$`, lines[1])

	// Entries after Close are dropped.
	require.Nil(t, hook.Fire(log.NewEntry(logger)))
}
