// Package scheduler は端末のローカル通知スケジューラとの境界を定義します
package scheduler

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound は指定した通知IDが存在しない場合のエラーです
var ErrNotFound = errors.New("scheduled notification not found")

// Content は通知の表示内容です
type Content struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Presentation は通知を受信したときの表示方法です
// 起動時に一度だけ組み立て、スケジューラの実装に渡します
type Presentation struct {
	ShowAlert bool `json:"show_alert"`
	PlaySound bool `json:"play_sound"`
	SetBadge  bool `json:"set_badge"`
}

// DefaultPresentation はアラート・サウンド・バッジをすべて有効にした表示方法を返します
func DefaultPresentation() Presentation {
	return Presentation{
		ShowAlert: true,
		PlaySound: true,
		SetBadge:  true,
	}
}

// LocalScheduler はローカル通知のスケジュールを担当するインターフェースです
// ListScheduled は端末に登録されている通知IDをすべて返します
type LocalScheduler interface {
	Schedule(ctx context.Context, content Content, at time.Time) (string, error)
	Cancel(ctx context.Context, notificationID string) error
	ListScheduled(ctx context.Context) ([]string, error)
}

// Resolver はユーザーの端末に対応するLocalSchedulerを返します
type Resolver interface {
	ForUser(userID string) LocalScheduler
}

// ResolverFunc は関数をResolverとして扱うためのアダプタです
type ResolverFunc func(userID string) LocalScheduler

// ForUser はf(userID)を返します
func (f ResolverFunc) ForUser(userID string) LocalScheduler {
	return f(userID)
}

// Shared は全ユーザーが1台の端末を共有するResolverを返します
func Shared(s LocalScheduler) Resolver {
	return ResolverFunc(func(string) LocalScheduler {
		return s
	})
}

// Notification はスケジュール済みの通知です
type Notification struct {
	ID           string       `json:"id"`
	Content      Content      `json:"content"`
	FireAt       time.Time    `json:"fire_at"`
	Presentation Presentation `json:"presentation"`
}
