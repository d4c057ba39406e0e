// Package ordernum генерирует человекочитаемые номера заказов.
package ordernum

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"time"
)

// Prefix — общий префикс всех номеров заказов.
const Prefix = "ORD"

var numberRe = regexp.MustCompile(`^ORD-\d{8}-\d{4}$`)

// Generate возвращает номер вида ORD-YYYYMMDD-NNNN, где NNNN — случайное
// число из диапазона [1000, 9999]. Уникальность номера не проверяется:
// гарантию даёт ограничение уникальности в хранилище, а вызывающая сторона
// при конфликте генерирует номер заново.
func Generate(now time.Time) string {
	suffix := 1000 + rand.IntN(9000)
	return fmt.Sprintf("%s-%s-%04d", Prefix, now.Format("20060102"), suffix)
}

// IsValid проверяет соответствие строки формату номера заказа.
func IsValid(number string) bool {
	return numberRe.MatchString(number)
}
