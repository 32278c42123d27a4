// Package logging configures logrus for the command line: colored console
// output and an append-only log file next to the migration report.
package logging

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
)

// ConsoleTimestampFormat matches the timestamps of the log file.
const ConsoleTimestampFormat = "2006-01-02 15:04:05"

// ConsoleFormatter prints "[time] LEVEL message key=value" with the level
// colored by severity.
type ConsoleFormatter struct {
	NoColor bool
}

func (f *ConsoleFormatter) levelText(level log.Level) string {
	text := strings.ToUpper(level.String())
	if f.NoColor {
		return text
	}
	var c *color.Color
	switch level {
	case log.PanicLevel, log.FatalLevel, log.ErrorLevel:
		c = color.New(color.FgRed, color.Bold)
	case log.WarnLevel:
		c = color.New(color.FgYellow)
	case log.InfoLevel:
		c = color.New(color.FgGreen)
	default:
		c = color.New(color.FgBlue)
	}
	c.EnableColor()
	return c.Sprint(text)
}

func (f *ConsoleFormatter) Format(entry *log.Entry) ([]byte, error) {
	b := &bytes.Buffer{}
	fmt.Fprintf(b, "[%s] %-7s %s", entry.Time.Format(ConsoleTimestampFormat), f.levelText(entry.Level), entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, " %s=%v", k, entry.Data[k])
	}
	if entry.HasCaller() {
		fmt.Fprintf(b, " (%s:%d)", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// SetFormatter installs the console formatter.
func SetFormatter(noColor bool) {
	color.NoColor = noColor
	log.SetFormatter(&ConsoleFormatter{NoColor: noColor})
}

// SetLogLevel parses logLevel; debug overrides it and adds caller locations.
func SetLogLevel(logLevel string, debug bool) error {
	if debug {
		log.SetLevel(log.DebugLevel)
		log.SetReportCaller(true)
		return nil
	}
	if logLevel == "" {
		log.SetLevel(log.InfoLevel)
		return nil
	}
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	log.SetLevel(level)
	return nil
}
