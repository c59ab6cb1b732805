package sync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxOperationsPerBatch bounds a single apply call. The limit is checked
// before any sequence numbers are reserved so an oversized batch consumes
// nothing.
const MaxOperationsPerBatch = 10000

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew = "sync.service.new"
	opApply      = "sync.apply"
	opPull       = "sync.pull"
)

// ServiceConfig describes the dependencies of the sync service.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service ingests operation batches and serves diff pulls. Handlers are
// stateless; the only shared mutable resource per user is the sequence
// counter, protected by the store's atomic increment.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the sync service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// validateBatch checks the batch bound and decodes every envelope. It is pure:
// no sequence numbers are reserved and no writes are attempted. A malformed
// payload is reported with its batch index and reason.
func validateBatch(envelopes []Envelope) ([]Operation, error) {
	if len(envelopes) > MaxOperationsPerBatch {
		return nil, ErrTooManyOperations
	}
	ops := make([]Operation, 0, len(envelopes))
	for index, envelope := range envelopes {
		op, err := decodeOperation(envelope)
		if err != nil {
			return nil, &SchemaError{Index: index, Reason: err.Error()}
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// checkReviewLogCards enforces that every review log references a card that
// already exists or is created earlier in the same batch. Batch writes apply
// in list order, and a card upsert always leaves the row present even when it
// loses the merge, so an in-batch card operation satisfies the reference.
func (s *Service) checkReviewLogCards(ctx context.Context, userID string, ops []Operation) error {
	inBatch := make(map[string]struct{})
	for index, op := range ops {
		switch payload := op.Payload.(type) {
		case CardPayload:
			inBatch[payload.ID] = struct{}{}
		case ReviewLogPayload:
			if _, ok := inBatch[payload.CardID]; ok {
				continue
			}
			var count int64
			err := s.db.WithContext(ctx).Model(&Card{}).
				Where("user_id = ? AND id = ?", userID, payload.CardID).
				Count(&count).Error
			if err != nil {
				return newServiceError(opApply, "card_lookup_failed", err)
			}
			if count == 0 {
				return newServiceError(opApply, "referential_integrity",
					fmt.Errorf("%w: operation %d references card %q", ErrReferentialIntegrity, index, payload.CardID))
			}
			inBatch[payload.CardID] = struct{}{}
		}
	}
	return nil
}

// Apply ingests one batch of client operations: validate, reserve a block of
// sequence numbers, assign them in list order, and submit every resulting
// upsert as one batch. On batch failure the reserved numbers are permanently
// consumed; the caller resubmits the same logical operations, which is safe
// under every merge policy here.
func (s *Service) Apply(ctx context.Context, userID, clientID string, envelopes []Envelope) error {
	ops, err := validateBatch(envelopes)
	if err != nil {
		s.logError(opApply, "validation_failed", err, zap.String("user_id", userID))
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	if err := s.checkReviewLogCards(ctx, userID, ops); err != nil {
		s.logError(opApply, "referential_check_failed", err,
			zap.String("user_id", userID),
			zap.String("client_id", clientID))
		return err
	}

	startSeqNo, err := reserveSeqNos(ctx, s.db, userID, len(ops))
	if err != nil {
		s.logError(opApply, "seq_reservation_failed", err, zap.String("user_id", userID))
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		return newServiceError(opApply, "seq_reservation_failed", err)
	}

	writes := make([]batchWrite, 0, len(ops))
	for i, op := range ops {
		write, err := buildWrite(userID, clientID, startSeqNo+int64(i), op)
		if err != nil {
			s.logError(opApply, "unhandled_operation", err, zap.String("user_id", userID))
			return &SchemaError{Index: i, Reason: err.Error()}
		}
		writes = append(writes, write)
	}

	batchErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, write := range writes {
			if err := write(tx); err != nil {
				return err
			}
		}
		return nil
	})
	if batchErr != nil {
		s.logError(opApply, "batch_write_failed", batchErr,
			zap.String("user_id", userID),
			zap.String("client_id", clientID),
			zap.Int64("start_seq_no", startSeqNo),
			zap.Int("operations", len(ops)))
		return newServiceError(opApply, "batch_write_failed", fmt.Errorf("%w: %v", ErrApplyFailed, batchErr))
	}

	s.logger.Debug("sync batch applied",
		zap.String("user_id", userID),
		zap.String("client_id", clientID),
		zap.Int64("start_seq_no", startSeqNo),
		zap.Int("operations", len(ops)))
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("sync service error", attrs...)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}
