package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-reminder/internal/model"
)

// NotificationRepository は通知台帳の永続化を担当するインターフェースです
type NotificationRepository interface {
	GetByUserID(ctx context.Context, userID string) ([]model.LedgerEntry, error)
	GetDeliveredByUserID(ctx context.Context, userID string, until time.Time) ([]model.LedgerEntry, error)
	Create(ctx context.Context, entry *model.LedgerEntry) error
}

// NotificationRepositoryImpl は通知台帳の永続化を担当します
type NotificationRepositoryImpl struct {
	db *DB
}

// NewNotificationRepository は新しいNotificationRepositoryを作成します
func NewNotificationRepository(db *DB) *NotificationRepositoryImpl {
	return &NotificationRepositoryImpl{
		db: db,
	}
}

const ledgerColumns = `id, notification_id, reminder_id, user_id, pet_id, type, title, body, time, created_at`

// GetByUserID は指定されたユーザーの台帳レコードをすべて取得します
func (r *NotificationRepositoryImpl) GetByUserID(ctx context.Context, userID string) ([]model.LedgerEntry, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "NotificationRepository.GetByUserID")
	defer seg.Close(nil)

	query := `
		SELECT ` + ledgerColumns + `
		FROM notifications
		WHERE user_id = $1
		ORDER BY time ASC`

	var entries []model.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, userID); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}

	return entries, nil
}

// GetDeliveredByUserID は until 以前に発火した台帳レコードを新しい順に取得します
func (r *NotificationRepositoryImpl) GetDeliveredByUserID(ctx context.Context, userID string, until time.Time) ([]model.LedgerEntry, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "NotificationRepository.GetDeliveredByUserID")
	defer seg.Close(nil)

	query := `
		SELECT ` + ledgerColumns + `
		FROM notifications
		WHERE user_id = $1
		AND time <= $2
		ORDER BY time DESC`

	var entries []model.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, userID, until); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to query delivered notifications: %w", err)
	}

	return entries, nil
}

// Create は台帳レコードを1件作成します
func (r *NotificationRepositoryImpl) Create(ctx context.Context, entry *model.LedgerEntry) error {
	ctx, seg := xray.BeginSubsegment(ctx, "NotificationRepository.Create")
	defer seg.Close(nil)

	query := `
		INSERT INTO notifications (
			notification_id, reminder_id, user_id, pet_id, type, title, body, time, created_at
		) VALUES (
			:notification_id, :reminder_id, :user_id, :pet_id, :type, :title, :body, :time, :created_at
		)
		RETURNING id`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if err := r.db.NamedQueryRowContext(ctx, &entry.ID, query, entry); err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to create notification %s: %w", entry.NotificationID, err)
	}

	return nil
}
