package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"postbox/internal/logging"
	"postbox/internal/queue"
	"postbox/internal/services"
)

type outcome int

const (
	outcomeDelivered outcome = iota
	outcomeSkipped
	outcomeRequeued
	outcomeFlagged
)

// drain attempts delivery of every queued record in FIFO order. It runs on
// the single worker goroutine; the draining flag exists only for status
// display.
func (e *Engine) drain(ctx context.Context) {
	e.mu.Lock()
	e.draining = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.draining = false
		e.mu.Unlock()
	}()

	drainID := uuid.NewString()
	logger := e.logger.With(logging.String(logging.FieldDrainID, drainID))

	records, err := e.store.ListQueued(ctx)
	if err != nil {
		e.handleStorageError(ctx, logger, "list queued records", err)
		return
	}
	if len(records) == 0 {
		e.pruneSynced(ctx, logger)
		return
	}

	summary := DrainSummary{
		DrainID:   drainID,
		Started:   time.Now(),
		Attempted: len(records),
	}
	logger.Info("drain started",
		logging.Int("pending", len(records)),
		logging.String(logging.FieldEventType, "drain_started"),
	)

	for _, record := range records {
		select {
		case <-ctx.Done():
			e.finishDrain(ctx, logger, summary)
			return
		default:
		}

		// One record's failure never blocks the rest of the queue; the
		// record is requeued or flagged and the drain moves on.
		result, _ := e.deliver(ctx, logger, record)
		switch result {
		case outcomeDelivered:
			summary.Delivered++
		case outcomeSkipped:
			summary.Attempted--
		case outcomeFlagged:
			summary.Flagged++
		case outcomeRequeued:
			summary.Failed++
		}
	}

	e.finishDrain(ctx, logger, summary)
}

func (e *Engine) finishDrain(ctx context.Context, logger *slog.Logger, summary DrainSummary) {
	summary.Duration = time.Since(summary.Started)

	e.mu.Lock()
	e.last = &summary
	e.mu.Unlock()

	logger.Info("drain finished",
		logging.Int("delivered", summary.Delivered),
		logging.Int("requeued", summary.Failed),
		logging.Int("flagged", summary.Flagged),
		logging.String("duration", summary.Duration.Round(time.Millisecond).String()),
		logging.String(logging.FieldEventType, "drain_finished"),
	)

	if summary.Delivered > 0 {
		if err := e.notifier.NotifySyncCompleted(ctx, summary.Delivered, summary.Failed, summary.Duration); err != nil {
			logger.Warn("sync notification failed", logging.Error(err))
		}
	}

	e.pruneSynced(ctx, logger)
}

// deliver pushes one record through the two-step intake flow. The record must
// be in the queued state; the compare-and-set transition to syncing keeps a
// record from ever being delivered twice.
func (e *Engine) deliver(ctx context.Context, logger *slog.Logger, record *queue.Record) (outcome, error) {
	claimed, err := e.store.MarkSyncing(ctx, record.ID)
	if err != nil {
		e.handleStorageError(ctx, logger, "claim record", err)
		return outcomeSkipped, err
	}
	if !claimed {
		return outcomeSkipped, nil
	}

	recordLogger := logger.With(
		logging.String(logging.FieldRecordID, record.ID),
		logging.String(logging.FieldIntent, record.Payload.Intent),
	)

	payload := record.Payload
	if att := record.Attachment; att != nil {
		if att.Pending() {
			ref, uploadErr := e.uploadAttachment(ctx, recordLogger, record)
			if uploadErr != nil {
				return e.fail(ctx, recordLogger, record, uploadErr)
			}
			att.RemoteRef = ref
		}
		payload.UploadedFiles = []string{att.RemoteRef}
	}

	receipt, err := e.client.CreateSubmission(ctx, payload)
	if err != nil {
		return e.fail(ctx, recordLogger, record, err)
	}

	if err := e.store.MarkSynced(ctx, record.ID, receipt); err != nil {
		e.handleStorageError(ctx, recordLogger, "persist receipt", err)
		return outcomeSkipped, err
	}
	e.monitor.ReportSuccess()

	recordLogger.Info("submission delivered",
		logging.String(logging.FieldRemoteID, receipt.RemoteID),
		logging.String(logging.FieldEventType, "record_synced"),
	)
	return outcomeDelivered, nil
}

// uploadAttachment sends the spooled blob and persists the returned remote
// reference before anything else happens. A crash after this point re-runs
// the submission step but never re-uploads the blob.
func (e *Engine) uploadAttachment(ctx context.Context, logger *slog.Logger, record *queue.Record) (string, error) {
	data, err := e.store.ReadAttachment(record)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "syncer", "upload", "read spooled attachment", err)
	}

	att := record.Attachment
	ref, err := e.client.UploadAttachment(ctx, data, att.Name, att.MediaType)
	if err != nil {
		return "", err
	}

	if err := e.store.SetRemoteRef(ctx, record.ID, ref); err != nil {
		e.handleStorageError(ctx, logger, "persist remote ref", err)
		return "", err
	}
	logger.Info("attachment uploaded",
		logging.String("remote_ref", ref),
		logging.String(logging.FieldEventType, "attachment_uploaded"),
	)
	return ref, nil
}

// fail records a delivery failure. Transient failures requeue the record for
// the next drain; permanent rejections flag it for user review.
func (e *Engine) fail(ctx context.Context, logger *slog.Logger, record *queue.Record, deliveryErr error) (outcome, error) {
	e.monitor.ReportFailure(deliveryErr)

	if services.FailureStatus(deliveryErr) == queue.StatusFlagged {
		return e.flag(ctx, logger, record, deliveryErr.Error())
	}

	// MarkFlagged counts the attempt itself, so a record at the cap goes
	// straight to flagged without a RecordFailure first.
	attempts := record.Attempts + 1
	if e.maxAttempts > 0 && attempts >= e.maxAttempts {
		reason := fmt.Sprintf("retry limit reached after %d attempts: %s", attempts, deliveryErr.Error())
		return e.flag(ctx, logger, record, reason)
	}

	if err := e.store.RecordFailure(ctx, record.ID, deliveryErr.Error()); err != nil {
		e.handleStorageError(ctx, logger, "record failure", err)
		return outcomeSkipped, err
	}

	logger.Warn("delivery failed, record requeued",
		logging.Error(deliveryErr),
		logging.Int("attempts", attempts),
		logging.String(logging.FieldEventType, "record_requeued"),
	)
	return outcomeRequeued, deliveryErr
}

func (e *Engine) flag(ctx context.Context, logger *slog.Logger, record *queue.Record, reason string) (outcome, error) {
	if err := e.store.MarkFlagged(ctx, record.ID, reason); err != nil {
		e.handleStorageError(ctx, logger, "flag record", err)
		return outcomeSkipped, err
	}
	logger.Warn("record flagged for review",
		logging.String("reason", reason),
		logging.String(logging.FieldEventType, "record_flagged"),
		logging.String(logging.FieldErrorHint, "inspect with 'postbox queue show' and retry after correcting"),
	)
	if err := e.notifier.NotifyRecordFlagged(ctx, record.ID, reason); err != nil {
		logger.Warn("flagged notification failed", logging.Error(err))
	}
	return outcomeFlagged, nil
}

func (e *Engine) pruneSynced(ctx context.Context, logger *slog.Logger) {
	if e.pruneAge <= 0 {
		return
	}
	pruned, err := e.store.PruneSynced(ctx, time.Now().Add(-e.pruneAge))
	if err != nil {
		logger.Warn("prune of delivered records failed", logging.Error(err))
		return
	}
	if pruned > 0 {
		logger.Info("pruned delivered records",
			logging.Int64("pruned", pruned),
			logging.String(logging.FieldEventType, "records_pruned"),
		)
	}
}

func (e *Engine) handleStorageError(ctx context.Context, logger *slog.Logger, op string, err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()

	logger.Error("queue storage failure",
		logging.String("op", op),
		logging.Error(err),
		logging.String(logging.FieldEventType, "storage_error"),
		logging.String(logging.FieldErrorHint, "check free space and database health"),
	)
	if notifyErr := e.notifier.NotifyStorageError(ctx, err); notifyErr != nil {
		logger.Warn("storage notification failed", logging.Error(notifyErr))
	}
}
