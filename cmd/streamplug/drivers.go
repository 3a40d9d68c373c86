package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/c360/streamplug/config"
	"github.com/c360/streamplug/connection"
	"github.com/c360/streamplug/errors"
	"github.com/c360/streamplug/host"
	"github.com/c360/streamplug/message"
	"github.com/c360/streamplug/value"
)

// builtinDrivers returns the drivers compiled into the host binary. They
// are mainly useful for smoke-testing a pipeline before real plugins are
// wired in.
func builtinDrivers() map[string]host.ClientFactory {
	return map[string]host.ClientFactory{
		"generate": newGenerateInput,
		"mapping":  newMappingProcessor,
		"stdout":   newStdoutOutput,
		"discard":  newDiscardOutput,
	}
}

// Param helpers. YAML hands params over as map[string]any; drivers pull out
// what they understand and reject what they cannot parse.

func paramInt(params map[string]any, key string, def int) (int, error) {
	raw, ok := params[key]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("param %q: expected integer, got %T", key, raw)
	}
}

func paramDuration(params map[string]any, key string, def time.Duration) (time.Duration, error) {
	raw, ok := params[key]
	if !ok {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("param %q: expected duration string, got %T", key, raw)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("param %q: %w", key, err)
	}
	return d, nil
}

// generateInput emits batches of structured messages on a fixed interval,
// each carrying a sequence number and generation timestamp. With a count
// it finishes after that many messages; without one it runs until closed.
type generateInput struct {
	interval  time.Duration
	batchSize int
	count     int

	mu        sync.Mutex
	seq       int64
	connected bool
}

func newGenerateInput(cfg config.InstanceConfig) (connection.Client, error) {
	interval, err := paramDuration(cfg.Params, "interval", time.Second)
	if err != nil {
		return nil, err
	}
	batchSize, err := paramInt(cfg.Params, "batch_size", 1)
	if err != nil {
		return nil, err
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("param %q: must be >= 1", "batch_size")
	}
	count, err := paramInt(cfg.Params, "count", 0)
	if err != nil {
		return nil, err
	}
	return &generateInput{interval: interval, batchSize: batchSize, count: count}, nil
}

func (g *generateInput) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = true
	return nil
}

func (g *generateInput) Read(ctx context.Context) (message.Batch, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil, errors.ErrNotConnected
	}
	if g.count > 0 && g.seq >= int64(g.count) {
		return nil, errors.ErrEndOfInput
	}

	if g.interval > 0 {
		timer := time.NewTimer(g.interval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	size := g.batchSize
	if g.count > 0 {
		if remaining := int64(g.count) - g.seq; remaining < int64(size) {
			size = int(remaining)
		}
	}
	msgs := make([]message.Message, 0, size)
	for i := 0; i < size; i++ {
		payload := value.Struct(map[string]value.Value{
			"seq":          value.Int64(g.seq),
			"generated_at": value.Timestamp(time.Now()),
		})
		msgs = append(msgs, message.NewStructuredMessage(payload))
		g.seq++
	}
	return message.NewBatch(msgs...), nil
}

func (g *generateInput) Write(ctx context.Context, batch message.Batch) error {
	return fmt.Errorf("generate is an input driver")
}

func (g *generateInput) Process(ctx context.Context, batch message.Batch) (message.Batch, error) {
	return nil, fmt.Errorf("generate is an input driver")
}

func (g *generateInput) Close(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = false
	return nil
}

// mappingProcessor stamps configured metadata onto every message. Params
// under "metadata" become string metadata entries.
type mappingProcessor struct {
	metadata map[string]string
}

func newMappingProcessor(cfg config.InstanceConfig) (connection.Client, error) {
	meta := make(map[string]string)
	if raw, ok := cfg.Params["metadata"]; ok {
		entries, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("param %q: expected mapping, got %T", "metadata", raw)
		}
		for k, v := range entries {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("param %q: value for %q must be a string", "metadata", k)
			}
			meta[k] = s
		}
	}
	return &mappingProcessor{metadata: meta}, nil
}

func (m *mappingProcessor) Connect(ctx context.Context) error { return nil }

func (m *mappingProcessor) Read(ctx context.Context) (message.Batch, error) {
	return nil, fmt.Errorf("mapping is a processor driver")
}

func (m *mappingProcessor) Write(ctx context.Context, batch message.Batch) error {
	return fmt.Errorf("mapping is a processor driver")
}

func (m *mappingProcessor) Process(ctx context.Context, batch message.Batch) (message.Batch, error) {
	out := make([]message.Message, 0, batch.Len())
	for _, msg := range batch {
		for k, v := range m.metadata {
			msg = msg.WithMetadata(k, value.String(v))
		}
		out = append(out, msg)
	}
	return message.NewBatch(out...), nil
}

func (m *mappingProcessor) Close(ctx context.Context) error { return nil }

// stdoutOutput renders each message to standard output, one line each.
type stdoutOutput struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func newStdoutOutput(cfg config.InstanceConfig) (connection.Client, error) {
	return &stdoutOutput{w: bufio.NewWriter(os.Stdout)}, nil
}

func (s *stdoutOutput) Connect(ctx context.Context) error { return nil }

func (s *stdoutOutput) Read(ctx context.Context) (message.Batch, error) {
	return nil, fmt.Errorf("stdout is an output driver")
}

func (s *stdoutOutput) Write(ctx context.Context, batch message.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range batch {
		var line string
		switch {
		case msg.Err().Active():
			line = fmt.Sprintf("ERROR %s", msg.Err().Message)
		default:
			if v, ok := msg.Structured(); ok {
				line = v.String()
			} else if raw, ok := msg.Bytes(); ok {
				line = string(raw)
			}
		}
		if _, err := fmt.Fprintln(s.w, line); err != nil {
			return err
		}
	}
	return s.w.Flush()
}

func (s *stdoutOutput) Process(ctx context.Context, batch message.Batch) (message.Batch, error) {
	return nil, fmt.Errorf("stdout is an output driver")
}

func (s *stdoutOutput) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

// discardOutput accepts and drops every batch.
type discardOutput struct{}

func newDiscardOutput(cfg config.InstanceConfig) (connection.Client, error) {
	return discardOutput{}, nil
}

func (discardOutput) Connect(ctx context.Context) error { return nil }

func (discardOutput) Read(ctx context.Context) (message.Batch, error) {
	return nil, fmt.Errorf("discard is an output driver")
}

func (discardOutput) Write(ctx context.Context, batch message.Batch) error { return nil }

func (discardOutput) Process(ctx context.Context, batch message.Batch) (message.Batch, error) {
	return nil, fmt.Errorf("discard is an output driver")
}

func (discardOutput) Close(ctx context.Context) error { return nil }
