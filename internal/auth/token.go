// Package auth はBearerトークンの発行と検証を提供する。
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "socialfeed"

// ErrInvalidToken はトークンの署名・期限・クレームが不正な場合のエラー。
var ErrInvalidToken = errors.New("invalid token")

// MemberClaims はアクセストークンのクレーム。SubjectにメンバーIDを10進文字列で格納する。
type MemberClaims struct {
	jwt.RegisteredClaims
}

// TokenVerifier はアクセストークンを検証し、メンバーIDを返す。
type TokenVerifier interface {
	Verify(tokenString string) (int64, error)
}

// HMACTokenService はHS256で署名されたトークンを扱う。
type HMACTokenService struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewHMACTokenService はHMACTokenServiceを生成する。
func NewHMACTokenService(secret string, expiry time.Duration) *HMACTokenService {
	return &HMACTokenService{
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
}

// Issue は指定メンバーのアクセストークンを発行する。
func (s *HMACTokenService) Issue(memberID int64) (string, error) {
	now := s.now()
	claims := MemberClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(memberID, 10),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗しました: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名と有効期限を検証し、SubjectのメンバーIDを返す。
func (s *HMACTokenService) Verify(tokenString string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &MemberClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*MemberClaims)
	if !ok || !token.Valid {
		return 0, ErrInvalidToken
	}

	memberID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || memberID <= 0 {
		return 0, fmt.Errorf("%w: subject is not a member id", ErrInvalidToken)
	}
	return memberID, nil
}

var _ TokenVerifier = (*HMACTokenService)(nil)
