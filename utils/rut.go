// utils/rut.go - Chilean RUT handling
package utils

import (
	"strings"
)

// NormalizeRut strips dots and uppercases the check digit, keeping the dash:
// "12.345.678-k" -> "12345678-K".
func NormalizeRut(rut string) string {
	rut = strings.ToUpper(strings.TrimSpace(rut))
	rut = strings.ReplaceAll(rut, ".", "")
	if !strings.Contains(rut, "-") && len(rut) > 1 {
		rut = rut[:len(rut)-1] + "-" + rut[len(rut)-1:]
	}
	return rut
}

// ValidateRut checks the modulo-11 check digit of a Chilean RUT.
func ValidateRut(rut string) bool {
	rut = NormalizeRut(rut)
	parts := strings.Split(rut, "-")
	if len(parts) != 2 || parts[0] == "" || len(parts[1]) != 1 {
		return false
	}

	body, check := parts[0], parts[1]
	sum := 0
	factor := 2
	for i := len(body) - 1; i >= 0; i-- {
		d := body[i]
		if d < '0' || d > '9' {
			return false
		}
		sum += int(d-'0') * factor
		factor++
		if factor > 7 {
			factor = 2
		}
	}

	expected := 11 - (sum % 11)
	switch expected {
	case 11:
		return check == "0"
	case 10:
		return check == "K"
	default:
		return check == string(rune('0'+expected))
	}
}
