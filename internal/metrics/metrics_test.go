package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(DeliveryFailed.WithLabelValues("test", "protocol"))
	DeliveryFailed.WithLabelValues("test", "protocol").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(DeliveryFailed.WithLabelValues("test", "protocol")))

	before = testutil.ToFloat64(RecipientTruncations.WithLabelValues("list"))
	RecipientTruncations.WithLabelValues("list").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RecipientTruncations.WithLabelValues("list")))
}

func TestWriteTextfile(t *testing.T) {
	Dispatched.Inc()
	DeliverySucceeded.WithLabelValues("textfile-test").Inc()

	path := filepath.Join(t.TempDir(), "jobmail.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	out := string(data)
	assert.True(t, strings.Contains(out, "jobmail_dispatched_total"), "missing dispatched counter")
	assert.True(t, strings.Contains(out, `jobmail_delivery_succeeded_total{provider="textfile-test"} 1`), "missing provider sample")
}

func TestWriteTextfile_BadPath(t *testing.T) {
	err := WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "jobmail.prom"))
	assert.Error(t, err)
}
