// Package report renders the human readable summary of a migration run.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
)

const FileTimestampFormat = "20060102-150405"

// StepTiming is the duration of one completed migration step.
type StepTiming struct {
	Name     string
	Duration time.Duration
}

// Validation is the outcome of the post-migration validation, when it ran.
type Validation struct {
	Status     string
	Endpoint   string
	KeyCount   int64
	Threshold  int64
	SampleKeys []string
	Success    bool
}

// Data is everything the report shows.
type Data struct {
	RunId      string
	StartedAt  time.Time
	FinishedAt time.Time

	SourceAccountId string
	SourceStack     string
	SourceClusterId string
	SourceNodeType  string
	SnapshotName    string
	SnapshotReused  bool
	ExportBucket    string
	ExportFiles     []string

	TargetAccountId string
	ImportBucket    string
	ImportPaths     []string
	TargetStack     string
	TargetStackMode string
	TargetClusterId string
	TargetEndpoint  string

	Completed []string
	// Skipped lists reached states whose work was left undone, e.g. an
	// existing target stack kept as is.
	Skipped    []string
	Steps      []StepTiming
	Validation *Validation
}

var reportTemplate = template.Must(template.New("report").Funcs(sprig.TxtFuncMap()).Parse(
	`{{ repeat 64 "=" }}
ElastiCache Redis cross-account migration report
{{ repeat 64 "=" }}
Run id:          {{ .RunId }}
Started:         {{ dateInZone "2006-01-02 15:04:05 MST" .StartedAt "UTC" }}
Finished:        {{ dateInZone "2006-01-02 15:04:05 MST" .FinishedAt "UTC" }}

Source
  Account:       {{ default "n/a" .SourceAccountId }}
  Stack:         {{ .SourceStack }}
  Cluster:       {{ .SourceClusterId }}{{ with .SourceNodeType }} ({{ . }}){{ end }}
  Snapshot:      {{ .SnapshotName }}{{ if .SnapshotReused }} (reused){{ end }}
  Export bucket: {{ .ExportBucket }}
  RDB files:     {{ join ", " .ExportFiles | default "none" }}

Target
  Account:       {{ default "n/a" .TargetAccountId }}
  Import bucket: {{ .ImportBucket }}
  Import paths:  {{ join ", " .ImportPaths | default "none" }}
  Stack:         {{ .TargetStack }}{{ with .TargetStackMode }} ({{ . }}){{ end }}
  Cluster:       {{ default "n/a" .TargetClusterId }}
  Endpoint:      {{ default "n/a" .TargetEndpoint }}

Completed steps
{{- range .Completed }}
{{- if has . $.Skipped }}
  [-] {{ . }} (skipped)
{{- else }}
  [x] {{ . }}
{{- end }}
{{- else }}
  none
{{- end }}
{{ if .Steps }}
Step durations
{{- range .Steps }}
  {{ printf "%-16s" .Name }} {{ .Duration }}
{{- end }}
{{ end }}
{{- with .Validation }}
Validation
  Status:        {{ .Status }}
  Endpoint:      {{ default "n/a" .Endpoint }}
  Keys:          {{ .KeyCount }} (threshold {{ .Threshold }})
  Sample keys:   {{ join ", " .SampleKeys | default "none" }}
  Result:        {{ if .Success }}PASSED{{ else }}FAILED{{ end }}
{{ end }}
Next steps
  - Point applications at the target cluster endpoint.
  - Run "redis-migrate cleanup" once the target cluster has been verified.
`))

// Render writes the report for data to w.
func Render(w io.Writer, data *Data) error {
	return reportTemplate.Execute(w, data)
}

// FileName is the report file name for a run finished at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("migration-report-%v.txt", t.Format(FileTimestampFormat))
}

// Write renders the report into dir and returns its path. Every write error is
// returned.
func Write(dir string, data *Data) (path string, err error) {
	path = filepath.Join(dir, FileName(data.FinishedAt))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", fmt.Errorf("could not create report %v: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("could not close report %v: %w", path, closeErr)
		}
	}()

	w := bufio.NewWriter(f)
	if err = Render(w, data); err != nil {
		return "", fmt.Errorf("could not render report %v: %w", path, err)
	}
	if err = w.Flush(); err != nil {
		return "", fmt.Errorf("could not write report %v: %w", path, err)
	}
	return path, nil
}
