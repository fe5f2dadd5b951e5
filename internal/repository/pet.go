package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jmoiron/sqlx"
)

// PetRepository は通知一覧に表示するペット名の参照を担当するインターフェースです
type PetRepository interface {
	GetNamesByIDs(ctx context.Context, petIDs []string) (map[string]string, error)
}

// PetRepositoryImpl はPetRepositoryの実装です
type PetRepositoryImpl struct {
	db *DB
}

// NewPetRepository は新しいPetRepositoryを作成します
func NewPetRepository(db *DB) *PetRepositoryImpl {
	return &PetRepositoryImpl{db: db}
}

type petName struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

// GetNamesByIDs はペットIDからペット名への対応を1回のクエリで取得します
// 削除済みのペットは結果に含まれません
func (r *PetRepositoryImpl) GetNamesByIDs(ctx context.Context, petIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(petIDs))
	if len(petIDs) == 0 {
		return names, nil
	}

	ctx, seg := xray.BeginSubsegment(ctx, "PetRepository.GetNamesByIDs")
	defer seg.Close(nil)

	query, args, err := sqlx.In(`SELECT id::text AS id, name FROM pets WHERE id IN (?)`, petIDs)
	if err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to build pet name query: %w", err)
	}

	var rows []petName
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to get pet names: %w", err)
	}

	for _, row := range rows {
		names[row.ID] = row.Name
	}
	return names, nil
}
