package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mtwharmby/emacontrol/ema"
	"github.com/mtwharmby/emacontrol/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const batchManifest = `
sessions:
  - id: 7
    date: 2019-06-19
    applications:
      - id: 120
        samples:
          - {position: 12, name: sample Q, measurement: PXRD}
          - {position: 3, name: sample A, measurement: PXRD}
          - {position: 5, name: sample P, measurement: PDF}
`

func writeManifest(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "samples.yaml")
	require.NoError(t, os.WriteFile(path, []byte(batchManifest), 0o644))
	return path
}

func TestBatchDryRun(t *testing.T) {
	f := newCLIFixture(t)
	out, _, err := f.run(t, "batch", "--manifest", writeManifest(t), "--session", "7", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "sample A")
	assert.Contains(t, out, "sample Q")
	assert.NotContains(t, out, "sample P")
	assert.Empty(t, f.controller.History())
}

func TestBatchRun(t *testing.T) {
	f := newCLIFixture(t)
	out, _, err := f.run(t, "batch", "--manifest", writeManifest(t), "--session", "7", "--measurement", "pdf")
	require.NoError(t, err)
	assert.Contains(t, out, "[1/1] 5 sample P")
	assert.Contains(t, out, "1 sample(s) done")

	history := f.controller.History()
	assert.Contains(t, history, "setSamPosOffset:#X0#Y4;")
	assert.Contains(t, history, "sampleMounted;")
	assert.Contains(t, history, "sampleUnmounted;")
	assert.Equal(t, "powerOff;", history[len(history)-2])
	assert.Equal(t, "setSamPosOffset:#X0#Y0;", history[len(history)-1])
	assert.False(t, f.controller.Powered())
}

func TestBatchRequiresManifest(t *testing.T) {
	f := newCLIFixture(t)
	_, _, err := f.run(t, "batch")
	assert.Error(t, err)
}

func TestBatchNoSession(t *testing.T) {
	f := newCLIFixture(t)
	_, _, err := f.run(t, "batch", "--manifest", writeManifest(t))
	assert.ErrorIs(t, err, manifest.ErrNoSession)
}

func TestBatchQueueNearestSession(t *testing.T) {
	b := &batchOptions{manifestPath: writeManifest(t), measurement: manifest.PXRD, delta: 1}
	queue, err := b.queue(time.Date(2019, 6, 20, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []manifest.Entry{
		{Application: 120, Position: 3, Name: "sample A"},
		{Application: 120, Position: 12, Name: "sample Q"},
	}, queue)
}

func TestRunBatchCancelledPowersOff(t *testing.T) {
	f := newCLIFixture(t)
	a := newTestApp(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	queue := []manifest.Entry{{Application: 1, Position: 2, Name: "x"}}
	err := runBatch(ctx, io.Discard, a.robot, a.logger, queue, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.controller.Powered())
	assert.Equal(t, ema.Parked, a.robot.Session().Status())
}
