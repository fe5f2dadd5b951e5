package utils

import (
	"context"
	"time"
)

// RetryPolicy は一時的な失敗に対する再試行の設定です
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// NoRetry は1回だけ実行するポリシーです
var NoRetry = RetryPolicy{Attempts: 1}

// Retry は fn が成功するまで最大 Attempts 回実行します
// 待機時間は BaseDelay から倍々に増やします。最後のエラーを返します
func Retry(ctx context.Context, policy RetryPolicy, fn func(context.Context) error) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		delay := policy.BaseDelay << i
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
	return err
}
