package host

import (
	"context"
	"time"

	"github.com/c360/streamplug/errors"
	"github.com/c360/streamplug/events"
	"github.com/c360/streamplug/message"
	"github.com/c360/streamplug/queue"
)

// fatalReadPause spaces out Read attempts against a persistently failing
// source when no connect delay is configured.
const fatalReadPause = 100 * time.Millisecond

// runInputPump reads batches from one input and pushes them downstream in
// Read order. The branch finishes on end of input, an exhausted connect
// budget, or shutdown. Returning nil lets the other branches keep running.
func (h *Host) runInputPump(ctx context.Context, inst *instance, out *queue.Queue[message.Batch]) error {
	defer h.closeConn(inst)
	name := inst.cfg.Name

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := h.ensureConnected(ctx, inst); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			h.events.Publish(ctx, name, events.TypeBranchComplete,
				"input branch abandoned after connect failures", err)
			return nil
		}
		if inst.limiter != nil {
			if err := inst.limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		batch, err := inst.conn.Read(ctx)
		if err == nil {
			if batch.Len() == 0 {
				// Heartbeat; nothing to forward.
				continue
			}
			h.metrics.readBatch(name)
			if pushErr := out.Push(ctx, batch); pushErr != nil {
				return nil
			}
			continue
		}

		decision := h.policy.Classify(err, errors.RoleInput, errors.OpRead)
		switch decision.Action {
		case errors.ActionComplete:
			h.events.Publish(ctx, name, events.TypeBranchComplete, "input exhausted", nil)
			return nil
		case errors.ActionReconnect:
			// The connection already dropped to Disconnected; the next
			// iteration re-runs the connect loop.
			continue
		case errors.ActionRetryAfter:
			h.metrics.backedOff(name)
			h.events.Publish(ctx, name, events.TypeBackOff, "read backoff requested", err)
			if !sleepCtx(ctx, decision.Delay) {
				return nil
			}
		default:
			h.metrics.fatal(name)
			h.events.Publish(ctx, name, events.TypeFatalError, "read failed", decision.Err)
			// Keep the branch alive but do not spin on a broken source.
			pause := h.connectCfg.InitialDelay
			if pause <= 0 {
				pause = fatalReadPause
			}
			if !sleepCtx(ctx, pause) {
				return nil
			}
		}
	}
}

// runProcessorPump pulls batches, transforms them through one processor,
// and pushes the results downstream in order. It owns the downstream queue
// and closes it on exit.
func (h *Host) runProcessorPump(ctx context.Context, inst *instance, in, out *queue.Queue[message.Batch]) error {
	defer out.Close()
	defer h.closeConn(inst)

	for {
		batch, err := in.Pull(ctx)
		if err != nil {
			return nil
		}
		result, ok := h.processBatch(ctx, inst, batch)
		if !ok {
			return nil
		}
		if pushErr := out.Push(ctx, result); pushErr != nil {
			return nil
		}
	}
}

// processBatch runs one batch through a processor, reconnecting and
// retrying the same batch on a lost session. A failure with no recovery
// signal annotates the batch with the error and forwards it instead of
// dropping it. The bool is false only on shutdown.
func (h *Host) processBatch(ctx context.Context, inst *instance, batch message.Batch) (message.Batch, bool) {
	name := inst.cfg.Name
	for {
		if ctx.Err() != nil {
			return nil, false
		}
		if err := h.ensureConnected(ctx, inst); err != nil {
			if ctx.Err() != nil {
				return nil, false
			}
			return batch.WithError(message.ErrorFrom(err)), true
		}

		result, err := inst.conn.Process(ctx, batch)
		if err == nil {
			h.metrics.processedBatch(name)
			return result, true
		}

		decision := h.policy.Classify(err, errors.RoleProcessor, errors.OpProcess)
		if decision.Action == errors.ActionReconnect {
			continue
		}
		// Everything else is fatal for a processor call: backoff and end
		// of input are not legal signals here and demote.
		h.metrics.fatal(name)
		h.events.Publish(ctx, name, events.TypeFatalError, "process failed", decision.Err)
		return batch.WithError(message.ErrorFrom(decision.Err)), true
	}
}

// runFanOut duplicates each batch into every output's queue. Messages are
// immutable, so outputs share the underlying batch. It owns the output
// queues and closes them on exit.
func runFanOut(ctx context.Context, in *queue.Queue[message.Batch], outs []*queue.Queue[message.Batch]) error {
	defer func() {
		for _, out := range outs {
			out.Close()
		}
	}()

	for {
		batch, err := in.Pull(ctx)
		if err != nil {
			return nil
		}
		for _, out := range outs {
			if pushErr := out.Push(ctx, batch); pushErr != nil {
				return nil
			}
		}
	}
}

// runOutputPump delivers batches to one output, at least once each.
func (h *Host) runOutputPump(ctx context.Context, inst *instance, in *queue.Queue[message.Batch]) error {
	defer h.closeConn(inst)

	for {
		batch, err := in.Pull(ctx)
		if err != nil {
			return nil
		}
		if !h.deliver(ctx, inst, batch) {
			return nil
		}
	}
}

// deliver writes one batch, reconnecting and retrying the exact same batch
// on a lost session and waiting out server-requested backoffs. A fatal
// failure or an exhausted connect budget hands the batch to the rejected
// handler. The bool is false only on shutdown, which abandons any retry
// still scheduled.
func (h *Host) deliver(ctx context.Context, inst *instance, batch message.Batch) bool {
	name := inst.cfg.Name
	for {
		if ctx.Err() != nil {
			return false
		}
		if err := h.ensureConnected(ctx, inst); err != nil {
			if ctx.Err() != nil {
				return false
			}
			h.reject(name, batch, err)
			return true
		}

		err := inst.conn.Write(ctx, batch)
		if err == nil {
			h.metrics.wroteBatch(name, batch.Len())
			return true
		}

		decision := h.policy.Classify(err, errors.RoleOutput, errors.OpWrite)
		switch decision.Action {
		case errors.ActionReconnect:
			continue
		case errors.ActionRetryAfter:
			h.metrics.backedOff(name)
			h.events.Publish(ctx, name, events.TypeBackOff, "write backoff requested", err)
			if !sleepCtx(ctx, decision.Delay) {
				return false
			}
		default:
			h.metrics.fatal(name)
			h.events.Publish(ctx, name, events.TypeFatalError, "write failed", decision.Err)
			h.reject(name, batch, decision.Err)
			return true
		}
	}
}

// sleepCtx waits for d, returning false if ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
