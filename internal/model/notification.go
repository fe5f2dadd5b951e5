package model

import (
	"time"
)

// LedgerEntry は通知台帳(notificationsテーブル)のレコードです
// 端末にスケジュールしたローカル通知1件につき1行作成され、更新はされません
type LedgerEntry struct {
	ID             int64        `db:"id" json:"-"`
	NotificationID string       `db:"notification_id" json:"notification_id"`
	ReminderID     string       `db:"reminder_id" json:"reminder_id"`
	UserID         string       `db:"user_id" json:"user_id"`
	PetID          *string      `db:"pet_id" json:"pet_id,omitempty"`
	Type           ReminderType `db:"type" json:"type"`
	Title          string       `db:"title" json:"title"`
	Body           string       `db:"body" json:"body"`
	Time           time.Time    `db:"time" json:"time"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}

// OccurrenceKey はリマインダーの発火1回分を識別するキーです
// 台帳の重複判定はこのキーで行います
type OccurrenceKey struct {
	ReminderID string
	At         int64
}

// NewOccurrenceKey はリマインダーIDと発火時刻からキーを作成します
func NewOccurrenceKey(reminderID string, at time.Time) OccurrenceKey {
	return OccurrenceKey{
		ReminderID: reminderID,
		At:         at.Unix(),
	}
}

// Key は台帳レコードの発火キーを返します
func (e LedgerEntry) Key() OccurrenceKey {
	return NewOccurrenceKey(e.ReminderID, e.Time)
}

// NewLedgerEntry はスケジュール済みの通知から台帳レコードを作成します
func NewLedgerEntry(reminder Reminder, notificationID string, at time.Time) LedgerEntry {
	entry := LedgerEntry{
		NotificationID: notificationID,
		ReminderID:     reminder.ID,
		UserID:         reminder.UserID,
		Type:           reminder.Type,
		Title:          reminder.Title,
		Body:           reminder.Body(),
		Time:           at.UTC(),
	}
	if reminder.PetID != "" {
		petID := reminder.PetID
		entry.PetID = &petID
	}
	return entry
}

// FeedItem は通知一覧に表示する1件です
type FeedItem struct {
	NotificationID string       `json:"notification_id"`
	ReminderID     string       `json:"reminder_id"`
	PetID          string       `json:"pet_id,omitempty"`
	PetName        string       `json:"pet_name,omitempty"`
	Type           ReminderType `json:"type"`
	Title          string       `json:"title"`
	Body           string       `json:"body"`
	Time           time.Time    `json:"time"`
}

// ToFeedItem は台帳レコードを通知一覧の表示形式に変換します
func (e LedgerEntry) ToFeedItem(petNameMap map[string]string) FeedItem {
	item := FeedItem{
		NotificationID: e.NotificationID,
		ReminderID:     e.ReminderID,
		Type:           e.Type,
		Title:          e.Title,
		Body:           e.Body,
		Time:           e.Time,
	}
	if e.PetID != nil {
		item.PetID = *e.PetID
		item.PetName = petNameMap[*e.PetID]
	}
	return item
}

// ReconcileResult はユーザー1人分の突き合わせ結果です
type ReconcileResult struct {
	UserID          string   `json:"user_id"`
	NotificationIDs []string `json:"notification_ids"`
	Error           string   `json:"error,omitempty"`
}
