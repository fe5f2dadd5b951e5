package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/gin-gonic/gin"
	"github.com/uma-arai/sbcntr-reminder/internal/common/config"
	"github.com/uma-arai/sbcntr-reminder/internal/common/database"
	"github.com/uma-arai/sbcntr-reminder/internal/handler"
	"github.com/uma-arai/sbcntr-reminder/internal/repository"
	"github.com/uma-arai/sbcntr-reminder/internal/service/feed"
	"github.com/uma-arai/sbcntr-reminder/internal/service/reconcile"
	"github.com/uma-arai/sbcntr-reminder/internal/service/session"
)

const (
	projectName = "sbcntr-reminder"
)

func main() {
	// 設定の読み込み
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v\nStack trace:\n%s", err, debug.Stack())
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatalf("auth.jwt_secret is required")
	}

	// X-Ray設定
	if cfg.EnableTracing {
		if err := xray.Configure(xray.Config{
			DaemonAddr:     "127.0.0.1:2000", // X-Rayデーモンのアドレス
			ServiceVersion: "1.0.0",
		}); err != nil {
			log.Printf("Failed to configure X-Ray: %v", err)
			if configErr := xray.Configure(xray.Config{}); configErr != nil {
				log.Fatalf("Failed to configure default X-Ray settings: %v", configErr)
			}
		}
	}
	os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")

	if !config.IsLocal() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewDB(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to create database connection: %v", err)
	}
	defer db.Close()

	repoDb := repository.NewDB(db.DB)

	// 起動時の準備処理にもセグメントを付与する
	setupCtx, setupSeg := xray.BeginSegment(context.Background(), projectName+"-setup")
	reconciler, err := reconcile.NewFromConfig(setupCtx, cfg, repoDb)
	setupSeg.Close(err)
	if err != nil {
		log.Fatalf("Failed to create reconciler: %v", err)
	}

	verifier := session.NewVerifier(cfg.Auth.JWTSecret)
	observer := session.NewObserver(
		verifier,
		reconciler,
		repository.NewProfileRepository(repoDb),
		cfg.Reconcile.Timeout,
	)
	feedService := feed.NewService(
		repository.NewNotificationRepository(repoDb),
		repository.NewPetRepository(repoDb),
	)

	router := handler.SetupRouter(handler.NewHandler(observer, verifier, feedService), projectName)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// シグナルを待機してグレースフルシャットダウン
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received signal: %v", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Failed to shutdown server: %v", err)
	}

	// 実行中の突き合わせの完了を待つ
	observer.Wait()
	log.Println("Server stopped")
}
