package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/entityflow/internal/dsl"
)

type fakeDestination struct {
	output string
	raw    []byte
	err    error
}

func (f *fakeDestination) Send(ctx context.Context, output string, raw []byte) error {
	if f.err != nil {
		return f.err
	}
	f.output = output
	f.raw = raw
	return nil
}

func formatSink(format string, record map[string]any) dsl.Sink {
	return dsl.Sink{
		To:     dsl.ToDef{Kind: dsl.ToFormat, Output: "export-target", Format: format},
		Record: record,
	}
}

func TestSinkWriter_WriteSink_ToFormatCSV(t *testing.T) {
	dest := &fakeDestination{}
	w := &SinkWriter{Dest: dest}

	err := w.WriteSink(context.Background(), formatSink("csv", map[string]any{"name": "Ada", "role": "engineer"}))
	require.NoError(t, err)

	assert.Equal(t, "export-target", dest.output)
	assert.Contains(t, string(dest.raw), "Ada")
	assert.Contains(t, string(dest.raw), "role")
}

func TestSinkWriter_WriteSink_ToFormatJSON(t *testing.T) {
	dest := &fakeDestination{}
	w := &SinkWriter{Dest: dest}

	err := w.WriteSink(context.Background(), formatSink("json", map[string]any{"name": "Ada"}))
	require.NoError(t, err)

	assert.Equal(t, "export-target", dest.output)
	assert.Equal(t, `[{"name":"Ada"}]`, string(dest.raw))
}

func TestSinkWriter_WriteSink_ToFormatNDJSON(t *testing.T) {
	dest := &fakeDestination{}
	w := &SinkWriter{Dest: dest}

	err := w.WriteSink(context.Background(), formatSink("ndjson", map[string]any{"name": "Ada"}))
	require.NoError(t, err)

	assert.Equal(t, `{"name":"Ada"}`, string(dest.raw))
}

func TestSinkWriter_WriteSink_ToFormatNoDestinationConfigured(t *testing.T) {
	w := &SinkWriter{}

	err := w.WriteSink(context.Background(), formatSink("csv", map[string]any{"name": "Ada"}))
	require.Error(t, err)
}

func TestSinkWriter_WriteSink_ToFormatUnknownFormat(t *testing.T) {
	dest := &fakeDestination{}
	w := &SinkWriter{Dest: dest}

	err := w.WriteSink(context.Background(), formatSink("xml", map[string]any{"name": "Ada"}))
	require.Error(t, err)
}

func TestSinkWriter_WriteSink_ToFormatDestinationSendError(t *testing.T) {
	dest := &fakeDestination{err: assert.AnError}
	w := &SinkWriter{Dest: dest}

	err := w.WriteSink(context.Background(), formatSink("json", map[string]any{"name": "Ada"}))
	require.Error(t, err)
}
