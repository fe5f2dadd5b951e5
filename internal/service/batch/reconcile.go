package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-reminder/internal/common/config"
	"github.com/uma-arai/sbcntr-reminder/internal/common/database"
	"github.com/uma-arai/sbcntr-reminder/internal/common/utils"
	"github.com/uma-arai/sbcntr-reminder/internal/model"
	"github.com/uma-arai/sbcntr-reminder/internal/repository"
	"github.com/uma-arai/sbcntr-reminder/internal/service/reconcile"
)

// Reconciler はユーザー1人分の通知を突き合わせます
type Reconciler interface {
	Reconcile(ctx context.Context, userID string) ([]string, error)
}

// TaskNotifier はStep Functionsへタスクの結果を通知します
type TaskNotifier interface {
	SendTaskSuccess(ctx context.Context, params *sfn.SendTaskSuccessInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error)
}

// ReconcileBatchService は複数ユーザーの通知の突き合わせを担当します
type ReconcileBatchService struct {
	args        []string
	db          *database.DB
	reconciler  Reconciler
	profileRepo repository.ProfileRepository
	sfnClient   TaskNotifier
	cfg         *config.Config
}

// NewReconcileBatchService は新しいReconcileBatchServiceを作成します
func NewReconcileBatchService(ctx context.Context, cfg *config.Config, sfnClient *sfn.Client) (*ReconcileBatchService, error) {
	db, err := database.NewDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	repoDb := repository.NewDB(db.DB)

	reconciler, err := reconcile.NewFromConfig(ctx, cfg, repoDb)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &ReconcileBatchService{
		db:          db,
		reconciler:  reconciler,
		profileRepo: repository.NewProfileRepository(repoDb),
		cfg:         cfg,
	}
	// nilの*sfn.Clientをインターフェースに入れない
	if sfnClient != nil {
		s.sfnClient = sfnClient
	}
	return s, nil
}

// Close は終了処理を行います
func (s *ReconcileBatchService) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SetArgs は突き合わせ対象のユーザーIDを設定します
func (s *ReconcileBatchService) SetArgs(userIDs []string) {
	s.args = userIDs
}

// Run はユーザーごとに突き合わせを実行し、結果をStep Functionsに通知します
// 1人の失敗は他のユーザーの処理に影響しません。全員が失敗した場合のみエラーを返します
func (s *ReconcileBatchService) Run(ctx context.Context) error {
	ctx, seg := xray.BeginSubsegment(ctx, "ReconcileBatchService.Run")
	defer seg.Close(nil)

	userIDs := s.args
	log.Printf("Starting reconcile batch process for %d users...", len(userIDs))

	if err := seg.AddMetadata("user_count", len(userIDs)); err != nil {
		log.Printf("Failed to add user_count metadata: %v", err)
	}

	startTime := time.Now()

	results := make([]model.ReconcileResult, 0, len(userIDs))
	failed := 0
	for _, userID := range userIDs {
		result := s.reconcileUser(ctx, userID)
		if result.Error != "" {
			failed++
		}
		results = append(results, result)
	}

	if len(userIDs) > 0 && failed == len(userIDs) {
		err := fmt.Errorf("reconciliation failed for all %d users", failed)
		seg.Close(err)
		return utils.GetStackWithError(err)
	}

	if err := s.sendTaskSuccess(ctx, results); err != nil {
		seg.Close(err)
		return utils.GetStackWithError(fmt.Errorf("failed to send task success: %w", err))
	}

	duration := time.Since(startTime)
	if err := seg.AddMetadata("duration", duration.String()); err != nil {
		log.Printf("Failed to add duration metadata: %v", err)
	}
	if err := seg.AddMetadata("failed_count", failed); err != nil {
		log.Printf("Failed to add failed_count metadata: %v", err)
	}

	log.Printf("Reconcile batch process completed. %d users, %d failed. Duration: %v", len(userIDs), failed, duration)
	return nil
}

// reconcileUser は通知の許可を確認してから1人分の突き合わせを実行します
func (s *ReconcileBatchService) reconcileUser(ctx context.Context, userID string) model.ReconcileResult {
	result := model.ReconcileResult{
		UserID:          userID,
		NotificationIDs: []string{},
	}

	if s.profileRepo != nil {
		enabled, err := s.profileRepo.NotificationsEnabled(ctx, userID)
		if err != nil {
			log.Printf("Failed to check notification permission for user %s: %v", userID, err)
			result.Error = err.Error()
			return result
		}
		if !enabled {
			log.Printf("Notifications are disabled for user %s. Skipping", userID)
			return result
		}
	}

	ids, err := s.reconciler.Reconcile(ctx, userID)
	if err != nil {
		if errors.Is(err, reconcile.ErrReconcileInProgress) {
			log.Printf("Reconciliation for user %s is already running. Skipping", userID)
			return result
		}
		log.Printf("Failed to reconcile notifications for user %s: %v", userID, err)
		result.Error = err.Error()
		return result
	}

	result.NotificationIDs = ids
	return result
}

// sendTaskSuccess は、Step Functionsのタスク成功を通知し、突き合わせ結果を返却します
func (s *ReconcileBatchService) sendTaskSuccess(ctx context.Context, results []model.ReconcileResult) error {
	// ローカルの場合はStep Functionsの処理をスキップ
	if config.IsLocal() || s.sfnClient == nil {
		log.Printf("Local environment detected. Skipping Step Functions task success notification")
		return nil
	}

	output, err := json.Marshal(map[string]any{
		"results": results,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	taskToken := s.cfg.SFN.TaskToken
	if taskToken == "" {
		return fmt.Errorf("SFN_TASK_TOKEN is not set in config")
	}

	input := &sfn.SendTaskSuccessInput{
		TaskToken: aws.String(taskToken),
		Output:    aws.String(string(output)),
	}

	if _, err := s.sfnClient.SendTaskSuccess(ctx, input); err != nil {
		return fmt.Errorf("failed to send task success: %w", err)
	}

	log.Printf("Successfully sent task success with results: %s", string(output))
	return nil
}

// UserIDsFromInput はStep Functionsから渡された入力JSONから対象ユーザーを取り出します
// {"user_ids": ["user1", "user2"]}
func UserIDsFromInput(input string) ([]string, error) {
	var payload struct {
		UserIDs []string `json:"user_ids"`
	}
	if err := json.Unmarshal([]byte(input), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse task input: %w", err)
	}
	return payload.UserIDs, nil
}
