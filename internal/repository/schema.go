package repository

import (
	"context"
	"fmt"
)

// EnsureDeviceQueue はscheduled_local_notificationsテーブルが無ければ作成します
// reminders / notifications / pets / profiles はバックエンド側が管理するため作成しません
func (r *DeviceQueueRepository) EnsureDeviceQueue(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS scheduled_local_notifications (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			fire_at TIMESTAMP WITH TIME ZONE NOT NULL,
			show_alert BOOLEAN NOT NULL DEFAULT TRUE,
			play_sound BOOLEAN NOT NULL DEFAULT TRUE,
			set_badge BOOLEAN NOT NULL DEFAULT TRUE,
			cancelled BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_scheduled_local_notifications_pending
			ON scheduled_local_notifications (user_id, fire_at) WHERE cancelled = FALSE;
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure scheduled_local_notifications table: %w", err)
	}
	return nil
}
