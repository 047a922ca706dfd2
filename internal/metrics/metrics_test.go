package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingAndTextfile(t *testing.T) {
	Init()
	Init()

	IncInvoice(OutcomeAccepted)
	IncInvoice(OutcomeExtractionError)
	IncNotification("critical", ResultSent)
	ObserveBatch(nil, 2*time.Second)
	ObserveBatch(errors.New("boom"), time.Second)
	SetCompletion("02/2025", 0.5)

	path := filepath.Join(t.TempDir(), "enel.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `enel_invoices_total{outcome="accepted"}`)
	assert.Contains(t, out, "enel_extraction_failures_total")
	assert.Contains(t, out, `enel_notifications_total{result="sent",tier="critical"}`)
	assert.Contains(t, out, "enel_batch_duration_seconds_count")
	assert.Contains(t, out, `enel_ledger_completion_ratio{period="02/2025"} 0.5`)
}

func TestWriteTextfile_EmptyPath(t *testing.T) {
	assert.NoError(t, WriteTextfile(""))
}
