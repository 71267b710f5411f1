package security

import "github.com/Abdillah-Ali/biz-compas/internal/domain"

// ValidatePINFormat reports whether pin is exactly four ASCII decimal digits.
// Leading zeros are significant; the PIN is never treated as a number.
func ValidatePINFormat(pin string) bool {
	if len(pin) != domain.PINLength {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}
