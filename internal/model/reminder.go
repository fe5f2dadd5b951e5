package model

import (
	"errors"
	"fmt"
	"time"
)

// Frequency はリマインダーの繰り返し頻度を表します
type Frequency string

const (
	FrequencyOnce    Frequency = "once"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
	FrequencyCustom  Frequency = "custom"
)

// ReminderType はお世話の種類を表します
// 表示用の情報であり、スケジュール計算には影響しません
type ReminderType string

const (
	ReminderTypeDeworming      ReminderType = "deworming"
	ReminderTypeFeedingWet     ReminderType = "feeding_wet"
	ReminderTypeFeedingDry     ReminderType = "feeding_dry"
	ReminderTypeNailCutting    ReminderType = "nail_cutting"
	ReminderTypeLitterCleaning ReminderType = "litter_cleaning"
	ReminderTypeVaccination    ReminderType = "vaccination"
	ReminderTypeVetCheckup     ReminderType = "vet_checkup"
	ReminderTypePlaytime       ReminderType = "playtime"
)

var (
	ErrMissingStartDate = errors.New("start_date is required")
	ErrMissingEndDate   = errors.New("end_date is required for daily reminders")
	ErrInvalidTimeOfDay = errors.New("invalid time of day")
)

// Reminder はremindersテーブルの1行を表します
// IsActive と NextDue は保持するだけで、通知のスケジュールには使用しません
type Reminder struct {
	ID            string       `db:"id" json:"id"`
	UserID        string       `db:"user_id" json:"user_id"`
	PetID         string       `db:"pet_id" json:"pet_id"`
	Type          ReminderType `db:"type" json:"type"`
	Title         string       `db:"title" json:"title"`
	Notes         *string      `db:"notes" json:"notes,omitempty"`
	Frequency     Frequency    `db:"frequency" json:"frequency"`
	Interval      *int         `db:"interval" json:"interval,omitempty"`
	StartDate     *time.Time   `db:"start_date" json:"start_date,omitempty"`
	EndDate       *time.Time   `db:"end_date" json:"end_date,omitempty"`
	Time          *string      `db:"time" json:"time,omitempty"`
	NextDue       *time.Time   `db:"next_due" json:"next_due,omitempty"`
	LastCompleted *time.Time   `db:"last_completed" json:"last_completed,omitempty"`
	IsActive      bool         `db:"is_active" json:"is_active"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}

// Body は通知本文として使うメモを返します
func (r Reminder) Body() string {
	if r.Notes == nil {
		return ""
	}
	return *r.Notes
}

// TimeOfDay は時刻(時:分:秒)を表します
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay は "HH:MM:SS" または "HH:MM" 形式の時刻を解析します
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
}

// timeOfDay はリマインダーの時刻を返します。未設定の場合は0時です
func (r Reminder) timeOfDay() (TimeOfDay, error) {
	if r.Time == nil || *r.Time == "" {
		return TimeOfDay{}, nil
	}
	return ParseTimeOfDay(*r.Time)
}

// Occurrences はリマインダーの発火候補時刻を返します
//   - once: start_dateの日付に時刻を設定した1件
//   - daily: start_dateからend_dateまで(両端を含む)1日1件
//   - それ以外の頻度: 候補なし
//
// 日付の判定は loc のカレンダーで行います
func (r Reminder) Occurrences(loc *time.Location) ([]time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}

	switch r.Frequency {
	case FrequencyOnce, FrequencyDaily:
	default:
		return nil, nil
	}

	if r.StartDate == nil {
		return nil, ErrMissingStartDate
	}

	tod, err := r.timeOfDay()
	if err != nil {
		return nil, err
	}

	start := atTimeOfDay(*r.StartDate, tod, loc)
	if r.Frequency == FrequencyOnce {
		return []time.Time{start}, nil
	}

	if r.EndDate == nil {
		return nil, ErrMissingEndDate
	}

	// 毎日のリマインダーは時・分だけを使う
	tod.Second = 0
	start = atTimeOfDay(*r.StartDate, tod, loc)
	end := atTimeOfDay(*r.EndDate, tod, loc)

	var occurrences []time.Time
	for day := 0; ; day++ {
		at := time.Date(start.Year(), start.Month(), start.Day()+day, tod.Hour, tod.Minute, 0, 0, loc)
		if at.After(end) {
			break
		}
		occurrences = append(occurrences, at)
	}
	return occurrences, nil
}

// IsSchedulable は発火時刻が通知対象かどうかを判定します
// 過去の時刻でも now と同じ日であれば対象とします
func IsSchedulable(at, now time.Time, loc *time.Location) bool {
	if !at.Before(now) {
		return true
	}
	return sameDay(at, now, loc)
}

func atTimeOfDay(date time.Time, tod TimeOfDay, loc *time.Location) time.Time {
	d := date.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), tod.Hour, tod.Minute, tod.Second, 0, loc)
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
