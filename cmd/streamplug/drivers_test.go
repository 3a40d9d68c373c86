package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamplug/config"
	"github.com/c360/streamplug/errors"
	"github.com/c360/streamplug/message"
	"github.com/c360/streamplug/value"
)

func TestGenerateInputProducesCountThenEndOfInput(t *testing.T) {
	client, err := newGenerateInput(config.InstanceConfig{
		Name:   "gen",
		Driver: "generate",
		Params: map[string]any{"interval": "0s", "count": 3, "batch_size": 2},
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))

	first, err := client.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Len())

	second, err := client.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Len())

	_, err = client.Read(ctx)
	assert.ErrorIs(t, err, errors.ErrEndOfInput)

	// Sequence numbers are continuous across batches.
	v, ok := second[0].Structured()
	require.True(t, ok)
	seq, ok := v.Field("seq")
	require.True(t, ok)
	n, ok := seq.Int64Val()
	require.True(t, ok)
	assert.Equal(t, int64(2), n)
}

func TestGenerateInputRequiresConnect(t *testing.T) {
	client, err := newGenerateInput(config.InstanceConfig{Name: "gen", Driver: "generate"})
	require.NoError(t, err)

	_, err = client.Read(context.Background())
	assert.ErrorIs(t, err, errors.ErrNotConnected)
}

func TestGenerateInputRejectsBadParams(t *testing.T) {
	_, err := newGenerateInput(config.InstanceConfig{
		Params: map[string]any{"interval": 5},
	})
	require.Error(t, err)

	_, err = newGenerateInput(config.InstanceConfig{
		Params: map[string]any{"batch_size": 0},
	})
	require.Error(t, err)
}

func TestMappingProcessorStampsMetadata(t *testing.T) {
	client, err := newMappingProcessor(config.InstanceConfig{
		Name:   "map",
		Driver: "mapping",
		Params: map[string]any{"metadata": map[string]any{"source": "test"}},
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))

	in := message.NewBatch(message.NewBytesMessage([]byte("payload")))
	out, err := client.Process(ctx, in)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())

	meta, ok := out[0].MetaValue("source")
	require.True(t, ok)
	assert.True(t, meta.Equal(value.String("test")))

	// Payload is untouched.
	raw, ok := out[0].Bytes()
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), raw)
}

func TestDiscardOutputAcceptsEverything(t *testing.T) {
	client, err := newDiscardOutput(config.InstanceConfig{Name: "sink", Driver: "discard"})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))
	require.NoError(t, client.Write(ctx, message.NewBatch()))
	require.NoError(t, client.Close(ctx))
}

func TestBuiltinDriversRegistered(t *testing.T) {
	drivers := builtinDrivers()
	for _, name := range []string{"generate", "mapping", "stdout", "discard"} {
		assert.Contains(t, drivers, name)
	}
}
