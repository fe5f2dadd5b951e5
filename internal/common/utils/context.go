package utils

import (
	"context"
	"fmt"
	"time"
)

// RunWithTimeout は指定されたタイムアウト時間内で処理を実行します
// タイムアウトを超えた場合は、コンテキストをキャンセルしてエラーを返します
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- fn(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("process timed out after %v", timeout)
		}
		return ctx.Err()
	}
}

// Detach は親のキャンセルを引き継がず、値だけを引き継いだタイムアウト付きコンテキストを返します
// リクエストの終了後も続ける処理に使います
func Detach(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
