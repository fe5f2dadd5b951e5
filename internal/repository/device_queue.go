package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/google/uuid"
	"github.com/uma-arai/sbcntr-reminder/internal/scheduler"
)

// DeviceQueueRepository はscheduled_local_notificationsテーブルを端末の通知キューとして扱います
// ユーザーごとのキューはForUserで取得します
type DeviceQueueRepository struct {
	db           *DB
	presentation scheduler.Presentation
}

var _ scheduler.Resolver = (*DeviceQueueRepository)(nil)

// NewDeviceQueueRepository は新しいDeviceQueueRepositoryを作成します
func NewDeviceQueueRepository(db *DB, presentation scheduler.Presentation) *DeviceQueueRepository {
	return &DeviceQueueRepository{
		db:           db,
		presentation: presentation,
	}
}

// ForUser はユーザーの端末の通知キューを返します
func (r *DeviceQueueRepository) ForUser(userID string) scheduler.LocalScheduler {
	return &deviceQueue{
		repo:   r,
		userID: userID,
	}
}

// deviceQueue は1ユーザー分の通知キューです
type deviceQueue struct {
	repo   *DeviceQueueRepository
	userID string
}

// Schedule は通知をキューに登録し、通知IDを返します
func (q *deviceQueue) Schedule(ctx context.Context, content scheduler.Content, at time.Time) (string, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "DeviceQueueRepository.Schedule")
	defer seg.Close(nil)

	id := uuid.NewString()
	query := `
		INSERT INTO scheduled_local_notifications (
			id, user_id, title, body, fire_at, show_alert, play_sound, set_badge, cancelled, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9
		)`

	p := q.repo.presentation
	_, err := q.repo.db.ExecContext(ctx, query,
		id,
		q.userID,
		content.Title,
		content.Body,
		at.UTC(),
		p.ShowAlert,
		p.PlaySound,
		p.SetBadge,
		time.Now().UTC(),
	)
	if err != nil {
		seg.Close(err)
		return "", fmt.Errorf("failed to schedule local notification: %w", err)
	}

	return id, nil
}

// Cancel は通知を取り消し済みにします
func (q *deviceQueue) Cancel(ctx context.Context, notificationID string) error {
	ctx, seg := xray.BeginSubsegment(ctx, "DeviceQueueRepository.Cancel")
	defer seg.Close(nil)

	query := `
		UPDATE scheduled_local_notifications
		SET cancelled = TRUE
		WHERE id = $1
		AND user_id = $2
		AND cancelled = FALSE`

	result, err := q.repo.db.ExecContext(ctx, query, notificationID, q.userID)
	if err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to cancel local notification: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		err := fmt.Errorf("%w: %s", scheduler.ErrNotFound, notificationID)
		seg.Close(err)
		return err
	}

	return nil
}

// ListScheduled は取り消されていない通知IDをすべて返します
func (q *deviceQueue) ListScheduled(ctx context.Context) ([]string, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "DeviceQueueRepository.ListScheduled")
	defer seg.Close(nil)

	query := `
		SELECT id::text
		FROM scheduled_local_notifications
		WHERE user_id = $1
		AND cancelled = FALSE
		ORDER BY fire_at ASC`

	var ids []string
	if err := q.repo.db.SelectContext(ctx, &ids, query, q.userID); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to list local notifications: %w", err)
	}

	return ids, nil
}
