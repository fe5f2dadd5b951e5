// Package reconcile は端末のローカル通知をユーザーのリマインダーに合わせて突き合わせます
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-reminder/internal/common/utils"
	"github.com/uma-arai/sbcntr-reminder/internal/model"
	"github.com/uma-arai/sbcntr-reminder/internal/repository"
	"github.com/uma-arai/sbcntr-reminder/internal/scheduler"
)

// ErrReconcileInProgress は同じユーザーの突き合わせが実行中の場合のエラーです
var ErrReconcileInProgress = errors.New("reconciliation already in progress")

// Reconciler は通知台帳・リマインダー・端末の通知キューを突き合わせます
type Reconciler struct {
	reminderRepo     repository.ReminderRepository
	notificationRepo repository.NotificationRepository
	schedulers       scheduler.Resolver

	loc      *time.Location
	now      func() time.Time
	retry    utils.RetryPolicy
	inflight *inflight
}

// Option はReconcilerの設定を変更します
type Option func(*Reconciler)

// WithLocation は暦日の判定に使うタイムゾーンを設定します
func WithLocation(loc *time.Location) Option {
	return func(r *Reconciler) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithClock は現在時刻の取得方法を設定します
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRetryPolicy は台帳・リマインダーの読み書きの再試行を設定します
func WithRetryPolicy(policy utils.RetryPolicy) Option {
	return func(r *Reconciler) {
		r.retry = policy
	}
}

// NewReconciler は新しいReconcilerを作成します
func NewReconciler(
	reminderRepo repository.ReminderRepository,
	notificationRepo repository.NotificationRepository,
	schedulers scheduler.Resolver,
	opts ...Option,
) *Reconciler {
	r := &Reconciler{
		reminderRepo:     reminderRepo,
		notificationRepo: notificationRepo,
		schedulers:       schedulers,
		loc:              time.UTC,
		now:              time.Now,
		retry:            utils.NoRetry,
		inflight:         newInflight(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile はユーザー1人分の突き合わせを実行し、今回スケジュールした通知IDを返します
//  1. 台帳から既知の通知IDを取得する
//  2. 台帳に無い端末の通知を取り消す
//  3. リマインダーごとに発火時刻を計算し、台帳に無いものだけスケジュールして台帳に記録する
//
// 台帳・リマインダーの取得に失敗した場合はその回の処理を中断します。
// 個々の通知のスケジュールや台帳への記録の失敗はログに残して処理を続けます
func (r *Reconciler) Reconcile(ctx context.Context, userID string) ([]string, error) {
	release, ok := r.inflight.acquire(userID)
	if !ok {
		return nil, ErrReconcileInProgress
	}
	defer release()

	ctx, seg := xray.BeginSubsegment(ctx, "Reconciler.Reconcile")
	defer seg.Close(nil)

	startTime := time.Now()

	var entries []model.LedgerEntry
	err := utils.Retry(ctx, r.retry, func(ctx context.Context) error {
		var err error
		entries, err = r.notificationRepo.GetByUserID(ctx, userID)
		return err
	})
	if err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to fetch notification ledger: %w", err)
	}

	knownIDs := make(map[string]struct{}, len(entries))
	scheduledKeys := make(map[model.OccurrenceKey]struct{}, len(entries))
	for _, entry := range entries {
		knownIDs[entry.NotificationID] = struct{}{}
		scheduledKeys[entry.Key()] = struct{}{}
	}

	device := r.schedulers.ForUser(userID)
	cancelled := r.cancelOrphans(ctx, device, knownIDs)

	var reminders []model.Reminder
	err = utils.Retry(ctx, r.retry, func(ctx context.Context) error {
		var err error
		reminders, err = r.reminderRepo.GetByUserID(ctx, userID)
		return err
	})
	if err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to fetch reminders: %w", err)
	}

	now := r.now()
	scheduledIDs := make([]string, 0)
	for _, reminder := range reminders {
		ids := r.scheduleReminder(ctx, device, reminder, now, scheduledKeys)
		scheduledIDs = append(scheduledIDs, ids...)
	}

	duration := time.Since(startTime)
	addMetadata(seg, "reminder_count", len(reminders))
	addMetadata(seg, "cancelled_count", cancelled)
	addMetadata(seg, "scheduled_count", len(scheduledIDs))
	addMetadata(seg, "duration", duration.String())

	log.Printf("Reconciled notifications for user %s: %d reminders, %d orphans cancelled, %d scheduled. Duration: %v",
		userID, len(reminders), cancelled, len(scheduledIDs), duration)

	return scheduledIDs, nil
}

// cancelOrphans は台帳に存在しない端末の通知を取り消し、取り消した件数を返します
func (r *Reconciler) cancelOrphans(ctx context.Context, device scheduler.LocalScheduler, knownIDs map[string]struct{}) int {
	ctx, seg := xray.BeginSubsegment(ctx, "Reconciler.cancelOrphans")
	defer seg.Close(nil)

	ids, err := device.ListScheduled(ctx)
	if err != nil {
		log.Printf("Failed to list scheduled notifications: %v", err)
		return 0
	}

	cancelled := 0
	for _, id := range ids {
		if _, ok := knownIDs[id]; ok {
			continue
		}
		if err := device.Cancel(ctx, id); err != nil {
			log.Printf("Failed to cancel orphaned notification %s: %v", id, err)
			continue
		}
		cancelled++
	}

	return cancelled
}

// scheduleReminder はリマインダーの未登録の発火時刻をスケジュールし、通知IDを返します
func (r *Reconciler) scheduleReminder(
	ctx context.Context,
	device scheduler.LocalScheduler,
	reminder model.Reminder,
	now time.Time,
	scheduledKeys map[model.OccurrenceKey]struct{},
) []string {
	occurrences, err := reminder.Occurrences(r.loc)
	if err != nil {
		log.Printf("Skipping reminder %s (%s): %v", reminder.ID, reminder.Title, err)
		return nil
	}
	if len(occurrences) == 0 {
		log.Printf("Skipping reminder %s (%s): no occurrences for frequency %q", reminder.ID, reminder.Title, reminder.Frequency)
		return nil
	}

	content := scheduler.Content{
		Title: reminder.Title,
		Body:  reminder.Body(),
	}

	var ids []string
	for _, at := range occurrences {
		if !model.IsSchedulable(at, now, r.loc) {
			continue
		}

		key := model.NewOccurrenceKey(reminder.ID, at)
		if _, ok := scheduledKeys[key]; ok {
			continue
		}

		id, err := device.Schedule(ctx, content, at)
		if err != nil {
			log.Printf("Failed to schedule reminder %s at %s: %v", reminder.ID, at.Format(time.RFC3339), err)
			continue
		}
		scheduledKeys[key] = struct{}{}
		ids = append(ids, id)

		// 記録に失敗した通知は次回の突き合わせで孤立通知として取り消される
		entry := model.NewLedgerEntry(reminder, id, at)
		err = utils.Retry(ctx, r.retry, func(ctx context.Context) error {
			return r.notificationRepo.Create(ctx, &entry)
		})
		if err != nil {
			log.Printf("Failed to store notification %s for reminder %s: %v", id, reminder.ID, err)
			continue
		}

		log.Printf("Scheduled %q for %s with ID: %s", reminder.Title, at.Format(time.RFC3339), id)
	}

	return ids
}

func addMetadata(seg *xray.Segment, key string, value interface{}) {
	if seg == nil {
		return
	}
	if err := seg.AddMetadata(key, value); err != nil {
		log.Printf("Failed to add %s metadata: %v", key, err)
	}
}
