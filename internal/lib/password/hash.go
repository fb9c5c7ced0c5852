// Package password реализует функции для безопасного хеширования и проверки паролей.
//
// Hash создает bcrypt-хеш пароля для безопасного хранения.
// Verify сравнивает bcrypt-хеш с введённым паролем и никогда не возвращает ошибку:
// любой внутренний сбой трактуется как несовпадение.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword возвращается при попытке захешировать пустой пароль.
var ErrEmptyPassword = errors.New("password is required")

// Hash принимает пароль пользователя и возвращает его bcrypt-хэш.
// Соль генерируется заново при каждом вызове.
func Hash(password string) (string, error) {
	const op = "password.Hash"
	if password == "" {
		return "", fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashedPassword), nil
}

// Verify сравнивает bcrypt-хэш с введённым паролем.
//
// Возвращает false на пустых входных данных и на любой внутренней ошибке,
// в том числе на повреждённом хэше.
func Verify(rawPassword, hash string) bool {
	if rawPassword == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(rawPassword)) == nil
}
