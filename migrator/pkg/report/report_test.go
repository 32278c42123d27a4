package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testData() *Data {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &Data{
		RunId:           "3f1c",
		StartedAt:       started,
		FinishedAt:      started.Add(42 * time.Minute),
		SourceStack:     "redis-source",
		SourceClusterId: "c1",
		SourceNodeType:  "cache.t3.micro",
		SnapshotName:    "migration-20240301-100000",
		ExportBucket:    "b1",
		ExportFiles:     []string{"migration-20240301-100000-0001.rdb"},
		ImportBucket:    "b2",
		ImportPaths:     []string{"b2/migration-20240301-100000-0001.rdb"},
		TargetStack:     "redis-target",
		TargetStackMode: "created",
		Completed:       []string{"SnapshotReady", "Exported"},
		Steps:           []StepTiming{{Name: "snapshot", Duration: 90 * time.Second}},
	}
}

func TestRender(t *testing.T) {
	var b bytes.Buffer
	require.Nil(t, Render(&b, testData()))

	out := b.String()
	require.Contains(t, out, "Run id:          3f1c")
	require.Contains(t, out, "Started:         2024-03-01 10:00:00 UTC")
	require.Contains(t, out, "Cluster:       c1 (cache.t3.micro)")
	require.Contains(t, out, "RDB files:     migration-20240301-100000-0001.rdb")
	require.Contains(t, out, "Import paths:  b2/migration-20240301-100000-0001.rdb")
	require.Contains(t, out, "Cluster:       n/a")
	require.Contains(t, out, "[x] SnapshotReady")
	require.Contains(t, out, "snapshot         1m30s")
	require.NotContains(t, out, "Validation")
}

func TestRender_WithValidation(t *testing.T) {
	data := testData()
	data.Validation = &Validation{Status: "connected", KeyCount: 45, Threshold: 40, Success: true, SampleKeys: []string{"a", "b"}}

	var b bytes.Buffer
	require.Nil(t, Render(&b, data))
	require.Contains(t, b.String(), "Keys:          45 (threshold 40)")
	require.Contains(t, b.String(), "Result:        PASSED")
}

func TestRender_SkippedStep(t *testing.T) {
	data := testData()
	data.TargetStackMode = "skipped"
	data.Completed = append(data.Completed, "CopiedToTarget", "ClusterCreated", "Reported")
	data.Skipped = []string{"ClusterCreated"}

	var b bytes.Buffer
	require.Nil(t, Render(&b, data))
	out := b.String()
	require.Contains(t, out, "[-] ClusterCreated (skipped)")
	require.NotContains(t, out, "[x] ClusterCreated")
	require.Contains(t, out, "[x] Reported")
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	path, err := Write(dir, testData())
	require.Nil(t, err)
	require.Equal(t, filepath.Join(dir, "migration-report-20240301-104200.txt"), path)

	content, err := os.ReadFile(path)
	require.Nil(t, err)
	require.Contains(t, string(content), "redis-source")
}

func TestWrite_MissingDirectory(t *testing.T) {
	_, err := Write(filepath.Join(t.TempDir(), "missing"), testData())
	require.NotNil(t, err)
}
