package host

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamplug/config"
	"github.com/c360/streamplug/connection"
	"github.com/c360/streamplug/errors"
	"github.com/c360/streamplug/message"
)

// inputStep scripts one Read outcome.
type inputStep struct {
	batch message.Batch
	err   error
}

// scriptedInput plays back a fixed sequence of Read outcomes. Once the
// script runs out it reports end of input.
type scriptedInput struct {
	mu         sync.Mutex
	connectErr error // when set, every Connect fails with it
	readErr    error // when set, every Read fails with it
	steps      []inputStep
	connects   int
	reads      int
	closes     int
}

func (s *scriptedInput) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	return s.connectErr
}

func (s *scriptedInput) Read(ctx context.Context) (message.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.readErr != nil {
		return nil, s.readErr
	}
	if len(s.steps) == 0 {
		return nil, errors.ErrEndOfInput
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step.batch, step.err
}

func (s *scriptedInput) Write(ctx context.Context, batch message.Batch) error {
	return stderrors.New("write on input")
}

func (s *scriptedInput) Process(ctx context.Context, batch message.Batch) (message.Batch, error) {
	return nil, stderrors.New("process on input")
}

func (s *scriptedInput) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *scriptedInput) connectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

func (s *scriptedInput) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// scriptedOutput records every Write attempt and consumes writeErrs one per
// attempt before succeeding.
type scriptedOutput struct {
	mu        sync.Mutex
	writeErrs []error
	alwaysErr error // when set, every Write fails with it
	attempts  []message.Batch
	delivered []message.Batch
	connects  int
	closes    int
}

func (s *scriptedOutput) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	return nil
}

func (s *scriptedOutput) Read(ctx context.Context) (message.Batch, error) {
	return nil, stderrors.New("read on output")
}

func (s *scriptedOutput) Write(ctx context.Context, batch message.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, batch)
	if s.alwaysErr != nil {
		return s.alwaysErr
	}
	if len(s.writeErrs) > 0 {
		err := s.writeErrs[0]
		s.writeErrs = s.writeErrs[1:]
		return err
	}
	s.delivered = append(s.delivered, batch)
	return nil
}

func (s *scriptedOutput) Process(ctx context.Context, batch message.Batch) (message.Batch, error) {
	return nil, stderrors.New("process on output")
}

func (s *scriptedOutput) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *scriptedOutput) deliveredBatches() []message.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.Batch, len(s.delivered))
	copy(out, s.delivered)
	return out
}

func (s *scriptedOutput) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

// scriptedProcessor applies fn, consuming processErrs one per call first.
type scriptedProcessor struct {
	mu          sync.Mutex
	fn          func(message.Batch) message.Batch
	processErrs []error
	connects    int
	closes      int
}

func (s *scriptedProcessor) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	return nil
}

func (s *scriptedProcessor) Read(ctx context.Context) (message.Batch, error) {
	return nil, stderrors.New("read on processor")
}

func (s *scriptedProcessor) Write(ctx context.Context, batch message.Batch) error {
	return stderrors.New("write on processor")
}

func (s *scriptedProcessor) Process(ctx context.Context, batch message.Batch) (message.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.processErrs) > 0 {
		err := s.processErrs[0]
		s.processErrs = s.processErrs[1:]
		return nil, err
	}
	if s.fn != nil {
		return s.fn(batch), nil
	}
	return batch, nil
}

func (s *scriptedProcessor) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

var _ connection.Client = (*scriptedInput)(nil)
var _ connection.Client = (*scriptedOutput)(nil)
var _ connection.Client = (*scriptedProcessor)(nil)

func fastConnect() config.ConnectConfig {
	return config.ConnectConfig{
		MaxAttempts:  3,
		InitialDelay: config.Duration(5 * time.Millisecond),
		MaxDelay:     config.Duration(20 * time.Millisecond),
		Multiplier:   2.0,
	}
}

func bytesBatch(payloads ...string) message.Batch {
	msgs := make([]message.Message, len(payloads))
	for i, p := range payloads {
		msgs[i] = message.NewBytesMessage([]byte(p))
	}
	return message.NewBatch(msgs...)
}

func newTestHost(t *testing.T, cfg config.PipelineConfig, clients map[string]connection.Client) *Host {
	t.Helper()
	drivers := make(map[string]ClientFactory, len(clients))
	for driver, client := range clients {
		client := client
		drivers[driver] = func(config.InstanceConfig) (connection.Client, error) {
			return client, nil
		}
	}
	h, err := New(cfg, drivers)
	require.NoError(t, err)
	return h
}

func TestPipelineDeliversInOrder(t *testing.T) {
	in := &scriptedInput{steps: []inputStep{
		{batch: bytesBatch("a")},
		{batch: bytesBatch("b", "c")},
		{err: errors.ErrEndOfInput},
	}}
	out := &scriptedOutput{}

	cfg := config.PipelineConfig{
		Name:          "order",
		QueueCapacity: 4,
		Connect:       fastConnect(),
		Inputs:        []config.InstanceConfig{{Name: "in", Driver: "in"}},
		Outputs:       []config.InstanceConfig{{Name: "out", Driver: "out"}},
	}
	h := newTestHost(t, cfg, map[string]connection.Client{"in": in, "out": out})

	require.NoError(t, h.Run(context.Background()))

	delivered := out.deliveredBatches()
	require.Len(t, delivered, 2)
	assert.True(t, delivered[0].Equal(bytesBatch("a")))
	assert.True(t, delivered[1].Equal(bytesBatch("b", "c")))

	assert.Equal(t, 1, in.closes)
	assert.Equal(t, 1, out.closes)
}

func TestReadDisconnectReconnectsOnceAndLosesNothing(t *testing.T) {
	in := &scriptedInput{steps: []inputStep{
		{batch: bytesBatch("before")},
		{err: errors.ErrNotConnected},
		{batch: bytesBatch("after")},
		{err: errors.ErrEndOfInput},
	}}
	out := &scriptedOutput{}

	cfg := config.PipelineConfig{
		Name:          "reconnect",
		QueueCapacity: 4,
		Connect:       fastConnect(),
		Inputs:        []config.InstanceConfig{{Name: "in", Driver: "in"}},
		Outputs:       []config.InstanceConfig{{Name: "out", Driver: "out"}},
	}
	h := newTestHost(t, cfg, map[string]connection.Client{"in": in, "out": out})

	require.NoError(t, h.Run(context.Background()))

	// Initial session plus exactly one re-establishment.
	assert.Equal(t, 2, in.connectCount())

	delivered := out.deliveredBatches()
	require.Len(t, delivered, 2)
	assert.True(t, delivered[0].Equal(bytesBatch("before")))
	assert.True(t, delivered[1].Equal(bytesBatch("after")))
}

func TestWriteBackOffRetriesIdenticalBatch(t *testing.T) {
	in := &scriptedInput{steps: []inputStep{
		{batch: bytesBatch("payload")},
		{err: errors.ErrEndOfInput},
	}}
	out := &scriptedOutput{writeErrs: []error{
		errors.BackOff(stderrors.New("throttled"), 100*time.Millisecond),
	}}

	cfg := config.PipelineConfig{
		Name:          "backoff",
		QueueCapacity: 4,
		Connect:       fastConnect(),
		Inputs:        []config.InstanceConfig{{Name: "in", Driver: "in"}},
		Outputs:       []config.InstanceConfig{{Name: "out", Driver: "out"}},
	}
	h := newTestHost(t, cfg, map[string]connection.Client{"in": in, "out": out})

	start := time.Now()
	require.NoError(t, h.Run(context.Background()))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	require.Equal(t, 2, out.attemptCount())
	assert.True(t, out.attempts[0].Equal(out.attempts[1]), "retry must carry the identical batch")
	require.Len(t, out.deliveredBatches(), 1)
}

func TestWriteDisconnectRedeliversSameBatch(t *testing.T) {
	in := &scriptedInput{steps: []inputStep{
		{batch: bytesBatch("once")},
		{err: errors.ErrEndOfInput},
	}}
	out := &scriptedOutput{writeErrs: []error{errors.ErrNotConnected}}

	cfg := config.PipelineConfig{
		Name:          "redeliver",
		QueueCapacity: 4,
		Connect:       fastConnect(),
		Inputs:        []config.InstanceConfig{{Name: "in", Driver: "in"}},
		Outputs:       []config.InstanceConfig{{Name: "out", Driver: "out"}},
	}
	h := newTestHost(t, cfg, map[string]connection.Client{"in": in, "out": out})

	require.NoError(t, h.Run(context.Background()))

	out.mu.Lock()
	defer out.mu.Unlock()
	assert.Equal(t, 2, out.connects)
	require.Len(t, out.attempts, 2)
	assert.True(t, out.attempts[0].Equal(out.attempts[1]))
	require.Len(t, out.delivered, 1)
}

func TestMultiInputJoinWaitsForAllBranches(t *testing.T) {
	fast := &scriptedInput{steps: []inputStep{
		{batch: bytesBatch("fast")},
		{err: errors.ErrEndOfInput},
	}}
	slow := &scriptedInput{steps: []inputStep{
		{batch: bytesBatch("slow-1")},
		{batch: bytesBatch("slow-2")},
		{err: errors.ErrEndOfInput},
	}}
	out := &scriptedOutput{}

	cfg := config.PipelineConfig{
		Name:          "join",
		QueueCapacity: 4,
		Connect:       fastConnect(),
		Inputs: []config.InstanceConfig{
			{Name: "fast", Driver: "fast", ReadRate: 1000},
			{Name: "slow", Driver: "slow", ReadRate: 50},
		},
		Outputs: []config.InstanceConfig{{Name: "out", Driver: "out"}},
	}
	h := newTestHost(t, cfg, map[string]connection.Client{"fast": fast, "slow": slow, "out": out})

	require.NoError(t, h.Run(context.Background()))

	// The fast branch finishing early must not end the pipeline; every
	// batch from both branches arrives.
	delivered := out.deliveredBatches()
	require.Len(t, delivered, 3)

	var slowSeen int
	for _, b := range delivered {
		if b.Equal(bytesBatch("slow-1")) || b.Equal(bytesBatch("slow-2")) {
			slowSeen++
		}
	}
	assert.Equal(t, 2, slowSeen)
}

func TestProcessorFatalForwardsAnnotatedBatch(t *testing.T) {
	in := &scriptedInput{steps: []inputStep{
		{batch: bytesBatch("poison")},
		{batch: bytesBatch("clean")},
		{err: errors.ErrEndOfInput},
	}}
	proc := &scriptedProcessor{processErrs: []error{stderrors.New("schema mismatch")}}
	out := &scriptedOutput{}

	cfg := config.PipelineConfig{
		Name:          "procfatal",
		QueueCapacity: 4,
		Connect:       fastConnect(),
		Inputs:        []config.InstanceConfig{{Name: "in", Driver: "in"}},
		Processors:    []config.InstanceConfig{{Name: "proc", Driver: "proc"}},
		Outputs:       []config.InstanceConfig{{Name: "out", Driver: "out"}},
	}
	h := newTestHost(t, cfg, map[string]connection.Client{"in": in, "proc": proc, "out": out})

	require.NoError(t, h.Run(context.Background()))

	delivered := out.deliveredBatches()
	require.Len(t, delivered, 2)

	// The failed batch still flows downstream, carrying the error.
	require.Equal(t, 1, delivered[0].Len())
	assert.True(t, delivered[0][0].Err().Active())
	assert.Contains(t, delivered[0][0].Err().Message, "schema mismatch")
	assert.False(t, delivered[1][0].Err().Active())
}

func TestFanOutDuplicatesToEveryOutput(t *testing.T) {
	in := &scriptedInput{steps: []inputStep{
		{batch: bytesBatch("x")},
		{err: errors.ErrEndOfInput},
	}}
	out1 := &scriptedOutput{}
	out2 := &scriptedOutput{}

	cfg := config.PipelineConfig{
		Name:          "fanout",
		QueueCapacity: 4,
		Connect:       fastConnect(),
		Inputs:        []config.InstanceConfig{{Name: "in", Driver: "in"}},
		Outputs: []config.InstanceConfig{
			{Name: "out1", Driver: "out1"},
			{Name: "out2", Driver: "out2"},
		},
	}
	h := newTestHost(t, cfg, map[string]connection.Client{"in": in, "out1": out1, "out2": out2})

	require.NoError(t, h.Run(context.Background()))

	require.Len(t, out1.deliveredBatches(), 1)
	require.Len(t, out2.deliveredBatches(), 1)
	assert.True(t, out1.deliveredBatches()[0].Equal(bytesBatch("x")))
	assert.True(t, out2.deliveredBatches()[0].Equal(bytesBatch("x")))
}

func TestShutdownAbandonsScheduledRetry(t *testing.T) {
	in := &scriptedInput{steps: []inputStep{
		{batch: bytesBatch("stuck")},
	}}
	out := &scriptedOutput{alwaysErr: errors.BackOff(stderrors.New("overloaded"), 10*time.Second)}

	cfg := config.PipelineConfig{
		Name:          "shutdown",
		QueueCapacity: 4,
		Connect:       fastConnect(),
		Inputs:        []config.InstanceConfig{{Name: "in", Driver: "in"}},
		Outputs:       []config.InstanceConfig{{Name: "out", Driver: "out"}},
	}
	h := newTestHost(t, cfg, map[string]connection.Client{"in": in, "out": out})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- h.Run(ctx)
	}()

	// Let the first write attempt land in its 10s backoff, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not abandon the scheduled retry")
	}

	out.mu.Lock()
	defer out.mu.Unlock()
	assert.Equal(t, 1, len(out.attempts))
	assert.Empty(t, out.delivered)
	assert.GreaterOrEqual(t, out.closes, 1)
}

func TestFatalReadPacedWithoutConnectDelay(t *testing.T) {
	in := &scriptedInput{readErr: stderrors.New("decode failure")}
	out := &scriptedOutput{}

	cfg := config.PipelineConfig{
		Name:          "paced",
		QueueCapacity: 4,
		// No delays configured; the pump must still pace its retries.
		Connect: config.ConnectConfig{MaxAttempts: 3},
		Inputs:  []config.InstanceConfig{{Name: "in", Driver: "in"}},
		Outputs: []config.InstanceConfig{{Name: "out", Driver: "out"}},
	}
	h := newTestHost(t, cfg, map[string]connection.Client{"in": in, "out": out})

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Run(ctx), context.DeadlineExceeded)

	// A busy spin would rack up thousands of reads in 250ms.
	assert.LessOrEqual(t, in.readCount(), 5)
}

func TestConnectBudgetExhaustedAbandonsBranch(t *testing.T) {
	in := &scriptedInput{connectErr: stderrors.New("refused")}
	out := &scriptedOutput{}

	cfg := config.PipelineConfig{
		Name:          "budget",
		QueueCapacity: 4,
		Connect: config.ConnectConfig{
			MaxAttempts:  2,
			InitialDelay: config.Duration(time.Millisecond),
			MaxDelay:     config.Duration(2 * time.Millisecond),
			Multiplier:   2.0,
		},
		Inputs:  []config.InstanceConfig{{Name: "in", Driver: "in"}},
		Outputs: []config.InstanceConfig{{Name: "out", Driver: "out"}},
	}
	h := newTestHost(t, cfg, map[string]connection.Client{"in": in, "out": out})

	require.NoError(t, h.Run(context.Background()))

	assert.Equal(t, 2, in.connectCount())
	assert.Empty(t, out.deliveredBatches())
	assert.GreaterOrEqual(t, in.closes, 1)
}

func TestRejectedHandlerReceivesFatalWrites(t *testing.T) {
	in := &scriptedInput{steps: []inputStep{
		{batch: bytesBatch("doomed")},
		{err: errors.ErrEndOfInput},
	}}
	out := &scriptedOutput{writeErrs: []error{stderrors.New("disk full")}}

	var mu sync.Mutex
	var rejected []message.Batch

	cfg := config.PipelineConfig{
		Name:          "rejected",
		QueueCapacity: 4,
		Connect:       fastConnect(),
		Inputs:        []config.InstanceConfig{{Name: "in", Driver: "in"}},
		Outputs:       []config.InstanceConfig{{Name: "out", Driver: "out"}},
	}
	drivers := map[string]ClientFactory{
		"in":  func(config.InstanceConfig) (connection.Client, error) { return in, nil },
		"out": func(config.InstanceConfig) (connection.Client, error) { return out, nil },
	}
	h, err := New(cfg, drivers, WithRejectedHandler(func(instance string, batch message.Batch, err error) {
		mu.Lock()
		defer mu.Unlock()
		rejected = append(rejected, batch)
	}))
	require.NoError(t, err)

	require.NoError(t, h.Run(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, rejected, 1)
	assert.True(t, rejected[0].Equal(bytesBatch("doomed")))
	assert.Empty(t, out.deliveredBatches())
}

func TestHealthReflectsConnectionStates(t *testing.T) {
	in := &scriptedInput{}
	out := &scriptedOutput{}

	cfg := config.PipelineConfig{
		Name:    "health",
		Connect: fastConnect(),
		Inputs:  []config.InstanceConfig{{Name: "in", Driver: "in"}},
		Outputs: []config.InstanceConfig{{Name: "out", Driver: "out"}},
	}
	h := newTestHost(t, cfg, map[string]connection.Client{"in": in, "out": out})

	// Nothing connected yet.
	status := h.Health()
	assert.True(t, status.IsDegraded())
	assert.Equal(t, "health", status.Component)
	require.Len(t, status.SubStatuses, 2)

	// After the run every connection is closed.
	require.NoError(t, h.Run(context.Background()))
	status = h.Health()
	assert.True(t, status.IsUnhealthy())
}

func TestUnknownDriverRejected(t *testing.T) {
	cfg := config.PipelineConfig{
		Name:    "bad",
		Connect: fastConnect(),
		Inputs:  []config.InstanceConfig{{Name: "in", Driver: "nope"}},
		Outputs: []config.InstanceConfig{{Name: "out", Driver: "nope"}},
	}
	_, err := New(cfg, map[string]ClientFactory{})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), "no driver registered")
}
