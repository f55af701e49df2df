// Package validation содержит функции валидации входных данных.
package validation

import "unicode"

// IsValidCouponCode проверяет форму кода купона: 3–16 символов,
// только заглавные латинские буквы и цифры. Существование купона
// проверяет бэкенд; здесь отсекается заведомо невалидный ввод.
func IsValidCouponCode(code string) bool {
	if len(code) < 3 || len(code) > 16 {
		return false
	}
	for _, ch := range code {
		if !unicode.IsDigit(ch) && !(ch >= 'A' && ch <= 'Z') {
			return false
		}
	}
	return true
}

// IsValidRating проверяет, что оценка отзыва лежит в диапазоне 1–5.
func IsValidRating(rating int64) bool {
	return rating >= 1 && rating <= 5
}

// IsValidGuests проверяет количество гостей бронирования.
func IsValidGuests(guests int64) bool {
	return guests >= 1 && guests <= 20
}

// IsValidPhone проверяет телефон бронирования: от 7 до 15 цифр,
// допускается ведущий знак «+».
func IsValidPhone(phone string) bool {
	if phone == "" {
		return false
	}

	digits := 0
	for i, ch := range phone {
		if ch == '+' && i == 0 {
			continue
		}
		if !unicode.IsDigit(ch) {
			return false
		}
		digits++
	}

	return digits >= 7 && digits <= 15
}
