// Package session はログイン状態の変化を監視し、通知の突き合わせを起動します
package session

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken はセッショントークンが無効な場合のエラーです
var ErrInvalidToken = errors.New("invalid session token")

// Verifier はバックエンドが発行したセッショントークン(HS256)を検証します
type Verifier struct {
	secret []byte
}

// NewVerifier は新しいVerifierを作成します
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Session はトークンから読み取ったセッションの識別情報です
// ID はjtiクレーム、無ければsubとiatの組み合わせ、どちらも無ければトークンそのものです
type Session struct {
	UserID string
	ID     string
}

// UserID はトークンを検証し、subクレームのユーザーIDを返します
func (v *Verifier) UserID(tokenString string) (string, error) {
	sess, err := v.Session(tokenString)
	if err != nil {
		return "", err
	}
	return sess.UserID, nil
}

// Session はトークンを検証し、ユーザーIDとセッションIDを返します
func (v *Verifier) Session(tokenString string) (Session, error) {
	if tokenString == "" {
		return Session{}, ErrInvalidToken
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return Session{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return Session{
		UserID: claims.Subject,
		ID:     sessionID(claims, tokenString),
	}, nil
}

func sessionID(claims *jwt.RegisteredClaims, tokenString string) string {
	if claims.ID != "" {
		return "jti:" + claims.ID
	}
	if claims.IssuedAt != nil {
		return fmt.Sprintf("iat:%s:%d", claims.Subject, claims.IssuedAt.Unix())
	}
	return "token:" + tokenString
}
