package reconcile

import (
	"context"
	"fmt"

	"github.com/uma-arai/sbcntr-reminder/internal/common/config"
	"github.com/uma-arai/sbcntr-reminder/internal/common/utils"
	"github.com/uma-arai/sbcntr-reminder/internal/repository"
	"github.com/uma-arai/sbcntr-reminder/internal/scheduler"
)

// PresentationFromConfig は設定から通知の表示方法を組み立てます
func PresentationFromConfig(cfg *config.Config) scheduler.Presentation {
	return scheduler.Presentation{
		ShowAlert: cfg.Notification.ShowAlert,
		PlaySound: cfg.Notification.PlaySound,
		SetBadge:  cfg.Notification.SetBadge,
	}
}

// NewFromConfig は設定に従ってReconcilerを組み立てます
// notification.queue が postgres の場合は通知キューのテーブルを準備します
func NewFromConfig(ctx context.Context, cfg *config.Config, db *repository.DB) (*Reconciler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	presentation := PresentationFromConfig(cfg)

	var schedulers scheduler.Resolver
	switch cfg.Notification.Queue {
	case config.QueueMemory:
		schedulers = scheduler.NewMemoryDevices(presentation)
	default:
		queue := repository.NewDeviceQueueRepository(db, presentation)
		if err := queue.EnsureDeviceQueue(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare device queue: %w", err)
		}
		schedulers = queue
	}

	return NewReconciler(
		repository.NewReminderRepository(db),
		repository.NewNotificationRepository(db),
		schedulers,
		WithLocation(loc),
		WithRetryPolicy(utils.RetryPolicy{
			Attempts:  cfg.Reconcile.RetryAttempts,
			BaseDelay: cfg.Reconcile.RetryBaseDelay,
		}),
	), nil
}
