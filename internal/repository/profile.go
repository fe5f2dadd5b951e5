package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/lib/pq"
)

// undefined_column
const undefinedColumn pq.ErrorCode = "42703"

// ProfileRepository はプロフィールの参照を担当するインターフェースです
type ProfileRepository interface {
	NotificationsEnabled(ctx context.Context, userID string) (bool, error)
}

// ProfileRepositoryImpl はProfileRepositoryの実装です
type ProfileRepositoryImpl struct {
	db *DB
}

// NewProfileRepository は新しいProfileRepositoryを作成します
func NewProfileRepository(db *DB) *ProfileRepositoryImpl {
	return &ProfileRepositoryImpl{db: db}
}

// NotificationsEnabled はユーザーが通知を許可しているかを返します
// プロフィールまたはnotifications_enabled列が存在しない場合は許可として扱います
func (r *ProfileRepositoryImpl) NotificationsEnabled(ctx context.Context, userID string) (bool, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ProfileRepository.NotificationsEnabled")
	defer seg.Close(nil)

	query := `
		SELECT notifications_enabled
		FROM profiles
		WHERE id = $1`

	var enabled bool
	err := r.db.GetContext(ctx, &enabled, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	// notifications_enabled列を追加していないスキーマでは許可として扱う
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == undefinedColumn {
		log.Printf("profiles.notifications_enabled is missing, treating user %s as enabled", userID)
		return true, nil
	}
	if err != nil {
		seg.Close(err)
		return false, fmt.Errorf("failed to get notification permission: %w", err)
	}

	return enabled, nil
}
