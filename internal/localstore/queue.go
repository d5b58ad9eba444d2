// queue.go: outbound operation queue operations
package localstore

import (
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/fieldsync-go/internal/errors"
)

// Enqueue atomically inserts a pending operation and returns its id.
func (s *Store) Enqueue(draft OperationDraft) (uint, error) {
	return s.enqueueWithState(draft, StatePending)
}

// EnqueueBlocked inserts an operation in the blocked state. Blocked
// operations are invisible to ReserveBatch until released; the media
// upload two-step uses this for the descriptor insert that must wait for
// its blob URI.
func (s *Store) EnqueueBlocked(draft OperationDraft) (uint, error) {
	return s.enqueueWithState(draft, StateBlocked)
}

func (s *Store) enqueueWithState(draft OperationDraft, state string) (uint, error) {
	if draft.Target == "" || draft.Verb == "" {
		return 0, errors.Newf("operation draft needs target and verb").
			Component("localstore").
			Category(errors.CategoryValidation).
			Build()
	}

	op := Operation{
		Target:      draft.Target,
		Verb:        draft.Verb,
		Key:         draft.Key,
		PayloadBlob: EncodePayload(draft.Payload),
		Priority:    draft.Priority,
		State:       state,
		CreatedAt:   now(),
	}
	if err := s.db.Create(&op).Error; err != nil {
		return 0, transient(err, "enqueue")
	}
	return op.ID, nil
}

// ReleaseBlocked merges extra payload fields into a blocked operation and
// transitions it to pending, making it visible to the next drain cycle.
func (s *Store) ReleaseBlocked(id uint, extraFields map[string]string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var op Operation
		if err := tx.Where("id = ? AND state = ?", id, StateBlocked).First(&op).Error; err != nil {
			return err
		}
		payload, err := DecodePayload(op.PayloadBlob)
		if err != nil {
			return err
		}
		for k, v := range extraFields {
			payload[k] = v
		}
		return tx.Model(&Operation{}).Where("id = ?", id).Updates(map[string]any{
			"payload_blob": EncodePayload(payload),
			"state":        StatePending,
		}).Error
	})
	if err != nil {
		return transient(err, "release_blocked")
	}
	return nil
}

// ReserveBatch atomically selects up to maxN pending operations with
// priority >= minPriority in priority-desc then id-asc order, transitions
// them to in_flight and returns them. A reserved operation is invisible to
// other reservers until a result is recorded or the reservation released.
// maxN <= 0 means unbounded.
func (s *Store) ReserveBatch(maxN, minPriority int) ([]Operation, error) {
	s.reserveMu.Lock()
	defer s.reserveMu.Unlock()

	var reserved []Operation
	err := s.db.Transaction(func(tx *gorm.DB) error {
		query := tx.Where("state = ? AND priority >= ?", StatePending, minPriority).
			Order("priority DESC, id ASC")
		if maxN > 0 {
			query = query.Limit(maxN)
		}
		if err := query.Find(&reserved).Error; err != nil {
			return err
		}
		if len(reserved) == 0 {
			return nil
		}
		ids := make([]uint, len(reserved))
		for i := range reserved {
			ids[i] = reserved[i].ID
		}
		res := tx.Model(&Operation{}).
			Where("id IN ? AND state = ?", ids, StatePending).
			Update("state", StateInFlight)
		if res.Error != nil {
			return res.Error
		}
		for i := range reserved {
			reserved[i].State = StateInFlight
		}
		return nil
	})
	if err != nil {
		return nil, transient(err, "reserve_batch")
	}
	return reserved, nil
}

// ReleaseReservation returns an in-flight operation to pending without
// recording an attempt. Used when the engine reserves an operation whose
// backoff window has not yet elapsed.
func (s *Store) ReleaseReservation(id uint) error {
	res := s.db.Model(&Operation{}).
		Where("id = ? AND state = ?", id, StateInFlight).
		Update("state", StatePending)
	if res.Error != nil {
		return transient(res.Error, "release_reservation")
	}
	if res.RowsAffected == 0 {
		return errors.Newf("operation %d is not in flight", id).
			Component("localstore").
			Category(errors.CategoryState).
			Build()
	}
	return nil
}

// MarkResult records the outcome of one drain attempt for a reserved
// operation. OutcomeRetry increments attempts and returns the row to
// pending; when the increment reaches the attempt ceiling the outcome is
// promoted to failed. OutcomeSynced also marks the linked shadow, voice
// and media rows as synced.
func (s *Store) MarkResult(id uint, outcome ResultOutcome) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var op Operation
		if err := tx.Where("id = ? AND state = ?", id, StateInFlight).First(&op).Error; err != nil {
			return err
		}

		ts := now()
		updates := map[string]any{"last_attempt_at": ts}

		switch outcome {
		case OutcomeSynced:
			updates["state"] = StateSynced
		case OutcomeRetry:
			op.Attempts++
			updates["attempts"] = op.Attempts
			if op.Attempts >= s.attemptCeiling {
				updates["state"] = StateFailed
			} else {
				updates["state"] = StatePending
			}
		case OutcomeFailed:
			op.Attempts++
			updates["attempts"] = op.Attempts
			updates["state"] = StateFailed
		}

		if err := tx.Model(&Operation{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}

		if outcome == OutcomeSynced {
			return markLinkedRowsSynced(tx, id)
		}
		return nil
	})
	if err != nil {
		return transient(err, "mark_result")
	}
	return nil
}

// markLinkedRowsSynced flips the sync_state of every row whose operation
// reached the central store.
func markLinkedRowsSynced(tx *gorm.DB, operationID uint) error {
	for _, model := range []any{&ShadowWorkOrder{}, &VoiceCommandRecord{}, &MediaDescriptor{}} {
		if err := tx.Model(model).
			Where("operation_id = ?", operationID).
			Update("sync_state", SyncStateSynced).Error; err != nil {
			return err
		}
	}
	return nil
}

// ReleaseStaleInFlight returns every in-flight operation to pending with
// attempts unchanged. Called once on startup: in-flight rows can only have
// been reserved by a previous process that died mid-cycle.
func (s *Store) ReleaseStaleInFlight() (int64, error) {
	res := s.db.Model(&Operation{}).
		Where("state = ?", StateInFlight).
		Update("state", StatePending)
	if res.Error != nil {
		return 0, transient(res.Error, "release_stale_in_flight")
	}
	if res.RowsAffected > 0 {
		s.logger.Warn("released stale in-flight operations from previous run", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// PruneSynced deletes synced operations whose last attempt precedes the
// cutoff. Failed rows are never pruned; they are kept for operator review.
func (s *Store) PruneSynced(olderThan time.Time) (int64, error) {
	res := s.db.Where("state = ? AND last_attempt_at < ?", StateSynced, olderThan).
		Delete(&Operation{})
	if res.Error != nil {
		return 0, transient(res.Error, "prune_synced")
	}
	return res.RowsAffected, nil
}

// PendingSummary returns the count of queued operations per target.
// Counts pending and in-flight rows, matching what status() reports.
func (s *Store) PendingSummary() (map[string]int64, error) {
	type row struct {
		Target string
		N      int64
	}
	var rows []row
	err := s.db.Model(&Operation{}).
		Select("target, COUNT(*) AS n").
		Where("state IN ?", []string{StatePending, StateInFlight}).
		Group("target").
		Scan(&rows).Error
	if err != nil {
		return nil, transient(err, "pending_summary")
	}
	summary := make(map[string]int64, len(rows))
	for _, r := range rows {
		summary[r.Target] = r.N
	}
	return summary, nil
}

// PendingCount returns the number of operations still awaiting sync
// (pending or in flight).
func (s *Store) PendingCount() (int64, error) {
	var n int64
	err := s.db.Model(&Operation{}).
		Where("state IN ?", []string{StatePending, StateInFlight}).
		Count(&n).Error
	if err != nil {
		return 0, transient(err, "pending_count")
	}
	return n, nil
}

// FailedOperations lists permanently failed operations, oldest first.
func (s *Store) FailedOperations() ([]Operation, error) {
	var ops []Operation
	err := s.db.Where("state = ?", StateFailed).Order("id ASC").Find(&ops).Error
	if err != nil {
		return nil, transient(err, "failed_operations")
	}
	return ops, nil
}

// FailedCount returns the number of permanently failed operations.
func (s *Store) FailedCount() (int64, error) {
	var n int64
	if err := s.db.Model(&Operation{}).Where("state = ?", StateFailed).Count(&n).Error; err != nil {
		return 0, transient(err, "failed_count")
	}
	return n, nil
}

// GetOperation fetches a single operation by id.
func (s *Store) GetOperation(id uint) (Operation, error) {
	var op Operation
	if err := s.db.First(&op, id).Error; err != nil {
		return Operation{}, transient(err, "get_operation")
	}
	return op, nil
}
