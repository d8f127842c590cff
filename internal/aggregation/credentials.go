package aggregation

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joydrop/backend/internal/store"
)

// ChangePassword replaces accountID's password hash. Hashing and checking the
// current password are the caller's job.
func (s *Service) ChangePassword(ctx context.Context, accountID uuid.UUID, hash string) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockAccount(ctx, accountID); err != nil {
			return err
		}
		return tx.UpdatePasswordHash(ctx, accountID, hash)
	})
	if err != nil {
		s.logFailure("change password", err, zap.String("account_id", accountID.String()))
		return err
	}
	s.logger.Info("password changed", zap.String("account_id", accountID.String()))
	return nil
}
