// Package feed は配信済みの通知一覧を提供します
package feed

import (
	"context"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-reminder/internal/model"
	"github.com/uma-arai/sbcntr-reminder/internal/repository"
)

// Service は通知台帳から配信済みの通知一覧を作成します
type Service struct {
	notificationRepo repository.NotificationRepository
	petRepo          repository.PetRepository
	now              func() time.Time
}

// NewService は新しいServiceを作成します
func NewService(notificationRepo repository.NotificationRepository, petRepo repository.PetRepository) *Service {
	return &Service{
		notificationRepo: notificationRepo,
		petRepo:          petRepo,
		now:              time.Now,
	}
}

// List は発火時刻を過ぎた通知を新しい順に返します
func (s *Service) List(ctx context.Context, userID string) ([]model.FeedItem, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "FeedService.List")
	defer seg.Close(nil)

	entries, err := s.notificationRepo.GetDeliveredByUserID(ctx, userID, s.now())
	if err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to fetch delivered notifications: %w", err)
	}

	petNameMap, err := s.getPetNameMap(ctx, entries)
	if err != nil {
		seg.Close(err)
		return nil, err
	}

	items := make([]model.FeedItem, len(entries))
	for i, entry := range entries {
		items[i] = entry.ToFeedItem(petNameMap)
	}

	return items, nil
}

// 重複のないペットIDをまとめて1回で問い合わせる
func (s *Service) getPetNameMap(ctx context.Context, entries []model.LedgerEntry) (map[string]string, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "FeedService.getPetNameMap")
	defer seg.Close(nil)

	petIDs := make([]string, 0)
	for _, entry := range entries {
		if entry.PetID == nil || slices.Contains(petIDs, *entry.PetID) {
			continue
		}
		petIDs = append(petIDs, *entry.PetID)
	}

	petNameMap, err := s.petRepo.GetNamesByIDs(ctx, petIDs)
	if err != nil {
		seg.Close(err)
		return nil, err
	}

	// 削除済みのペットは名前なしで表示する
	if missing := len(petIDs) - len(petNameMap); missing > 0 {
		log.Printf("%d pets referenced by notifications were not found", missing)
	}

	return petNameMap, nil
}
