package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-reminder/internal/model"
)

// ReminderRepository はリマインダーの参照を担当するインターフェースです
type ReminderRepository interface {
	GetByUserID(ctx context.Context, userID string) ([]model.Reminder, error)
}

// ReminderRepositoryImpl はReminderRepositoryの実装です
type ReminderRepositoryImpl struct {
	db *DB
}

// NewReminderRepository は新しいReminderRepositoryを作成します
func NewReminderRepository(db *DB) *ReminderRepositoryImpl {
	return &ReminderRepositoryImpl{db: db}
}

// GetByUserID は指定されたユーザーのリマインダーをすべて取得します
// is_activeでの絞り込みやページングは行いません
func (r *ReminderRepositoryImpl) GetByUserID(ctx context.Context, userID string) ([]model.Reminder, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReminderRepository.GetByUserID")
	defer seg.Close(nil)

	// time型はtime.Timeに変換されるため、文字列で取得する
	query := `
		SELECT
			id,
			user_id,
			pet_id,
			type,
			title,
			notes,
			frequency,
			"interval",
			start_date,
			end_date,
			"time"::text AS "time",
			next_due,
			last_completed,
			is_active,
			created_at
		FROM reminders
		WHERE user_id = $1
		ORDER BY created_at ASC
	`

	var reminders []model.Reminder
	if err := r.db.SelectContext(ctx, &reminders, query, userID); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to query reminders for user %s: %w", userID, err)
	}

	return reminders, nil
}
