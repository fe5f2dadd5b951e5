package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-reminder/internal/common/utils"
	"github.com/uma-arai/sbcntr-reminder/internal/service/reconcile"
)

// ErrNotificationsDisabled はユーザーが通知を許可していない場合のエラーです
var ErrNotificationsDisabled = errors.New("notifications are disabled for user")

// Reconciler はユーザー1人分の通知を突き合わせます
type Reconciler interface {
	Reconcile(ctx context.Context, userID string) ([]string, error)
}

// PermissionChecker はユーザーが通知を許可しているかを返します
type PermissionChecker interface {
	NotificationsEnabled(ctx context.Context, userID string) (bool, error)
}

// Observer はユーザーごとに現在のセッションを保持し、
// 保持しているものと異なるセッションが始まったときだけ突き合わせを起動します
// 同じトークンの再送では起動しません
type Observer struct {
	verifier    *Verifier
	reconciler  Reconciler
	permissions PermissionChecker
	timeout     time.Duration

	mu     sync.Mutex
	active map[string]string // userID -> セッションID
	wg     sync.WaitGroup
}

// NewObserver は新しいObserverを作成します
// permissions が nil の場合は通知の許可を確認しません
func NewObserver(verifier *Verifier, reconciler Reconciler, permissions PermissionChecker, timeout time.Duration) *Observer {
	return &Observer{
		verifier:    verifier,
		reconciler:  reconciler,
		permissions: permissions,
		timeout:     timeout,
		active:      make(map[string]string),
	}
}

// SessionStarted はセッションの開始(または更新)を記録します
// 新しいセッション(更新で発行し直されたトークンを含む)の場合はリクエストから切り離して
// 突き合わせを起動し、started に true を返します
func (o *Observer) SessionStarted(ctx context.Context, token string) (userID string, started bool, err error) {
	sess, err := o.verifier.Session(token)
	if err != nil {
		return "", false, err
	}

	o.mu.Lock()
	if current, ok := o.active[sess.UserID]; ok && current == sess.ID {
		o.mu.Unlock()
		return sess.UserID, false, nil
	}
	o.active[sess.UserID] = sess.ID
	o.wg.Add(1)
	o.mu.Unlock()

	go o.run(ctx, sess.UserID)

	return sess.UserID, true, nil
}

// SessionEnded はセッションの終了を記録します
func (o *Observer) SessionEnded(token string) (string, error) {
	userID, err := o.verifier.UserID(token)
	if err != nil {
		return "", err
	}

	o.mu.Lock()
	delete(o.active, userID)
	o.mu.Unlock()

	return userID, nil
}

// Active はユーザーのセッションが有るかを返します
func (o *Observer) Active(userID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	_, ok := o.active[userID]
	return ok
}

// Wait は起動済みの突き合わせがすべて終わるまで待機します
func (o *Observer) Wait() {
	o.wg.Wait()
}

func (o *Observer) run(parent context.Context, userID string) {
	defer o.wg.Done()

	ctx, cancel := utils.Detach(parent, o.timeout)
	defer cancel()

	ctx, seg := xray.BeginSegment(ctx, "SessionObserver.Reconcile")

	err := o.reconcile(ctx, userID)
	switch {
	case err == nil:
		seg.Close(nil)
	case errors.Is(err, reconcile.ErrReconcileInProgress), errors.Is(err, ErrNotificationsDisabled):
		log.Printf("Skipped reconciliation for user %s: %v", userID, err)
		seg.Close(nil)
	default:
		log.Printf("Reconciliation failed for user %s: %v", userID, err)
		seg.Close(err)
	}
}

func (o *Observer) reconcile(ctx context.Context, userID string) error {
	if o.permissions != nil {
		enabled, err := o.permissions.NotificationsEnabled(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to check notification permission: %w", err)
		}
		if !enabled {
			return ErrNotificationsDisabled
		}
	}

	ids, err := o.reconciler.Reconcile(ctx, userID)
	if err != nil {
		return err
	}

	log.Printf("Session reconciliation for user %s scheduled %d notifications", userID, len(ids))
	return nil
}
