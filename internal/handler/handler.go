// Package handler はセッションと通知一覧のHTTPハンドラを提供します
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/uma-arai/sbcntr-reminder/internal/model"
	"github.com/uma-arai/sbcntr-reminder/internal/service/session"
)

// SessionObserver はログイン状態の変化を受け取ります
type SessionObserver interface {
	SessionStarted(ctx context.Context, token string) (userID string, started bool, err error)
	SessionEnded(token string) (string, error)
}

// TokenVerifier はセッショントークンからユーザーIDを取得します
type TokenVerifier interface {
	UserID(token string) (string, error)
}

// FeedLister は配信済みの通知一覧を返します
type FeedLister interface {
	List(ctx context.Context, userID string) ([]model.FeedItem, error)
}

// Handler はHTTPリクエストを各サービスに振り分けます
type Handler struct {
	sessions SessionObserver
	verifier TokenVerifier
	feed     FeedLister
}

// NewHandler は新しいHandlerを作成します
func NewHandler(sessions SessionObserver, verifier TokenVerifier, feed FeedLister) *Handler {
	return &Handler{
		sessions: sessions,
		verifier: verifier,
		feed:     feed,
	}
}

type sessionResponse struct {
	UserID      string `json:"user_id"`
	Reconciling bool   `json:"reconciling"`
}

// StartSession はログイン(またはトークン更新)を受け付けます
// 新しいセッションの場合は通知の突き合わせをバックグラウンドで開始します
func (h *Handler) StartSession(c *gin.Context) {
	userID, started, err := h.sessions.SessionStarted(c.Request.Context(), bearerToken(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, sessionResponse{
		UserID:      userID,
		Reconciling: started,
	})
}

// EndSession はログアウトを受け付けます
func (h *Handler) EndSession(c *gin.Context) {
	if _, err := h.sessions.SessionEnded(bearerToken(c)); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListNotifications は配信済みの通知を新しい順に返します
func (h *Handler) ListNotifications(c *gin.Context) {
	userID, err := h.verifier.UserID(bearerToken(c))
	if err != nil {
		respondError(c, err)
		return
	}

	items, err := h.feed.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// Health はヘルスチェック用のエンドポイントです
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func respondError(c *gin.Context, err error) {
	if errors.Is(err, session.ErrInvalidToken) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing session token"})
		return
	}

	log.Printf("Request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
