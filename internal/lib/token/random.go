package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// NewSubscriptionID генерирует уникальный идентификатор подписки вида sub_<32 hex>.
func NewSubscriptionID() string {
	return "sub_" + randomHex(16)
}

// NewOpaqueToken генерирует 64-символьный hex-токен для постоянных
// unsubscribe-ссылок и временных токенов подтверждения.
func NewOpaqueToken() string {
	return randomHex(32)
}

// HashEmail возвращает sha256-хэш нормализованного email для аналитики,
// не раскрывающей сам адрес.
func HashEmail(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) string {
	buf := make([]byte, n)
	// rand.Read из crypto/rand не возвращает ошибку начиная с go1.24
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
