package keys

import "regexp"

// Ключ WireGuard — 32 байта в base64: 43 символа алфавита + «=».
var keyRe = regexp.MustCompile(`^[A-Za-z0-9+/]{43}=$`)

// IsValid — чистый предикат формата ключа (публичного, приватного, PSK).
// Применяется к каждому сгенерированному ключу до использования;
// провал здесь — баг генератора, а не пользовательский ввод.
func IsValid(key string) bool {
	return len(key) == 44 && keyRe.MatchString(key)
}
