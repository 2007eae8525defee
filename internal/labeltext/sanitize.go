package labeltext

import "strings"

// Sanitize canonicalizes a candidate code: uppercase, only [A-Z0-9-],
// no leading or trailing hyphens.
func Sanitize(s string) string {
	s = strings.ToUpper(s)
	s = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, s)
	return strings.Trim(s, "-")
}

// NormalizeCodeInput trims and uppercases a code typed by an operator or
// returned by a collaborator.
func NormalizeCodeInput(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Repair rewrites letters OCR commonly confuses with digits. Only use it when
// hunting numeric tokens; never on text kept for display.
func Repair(s string) string {
	return repairRunes(strings.ToUpper(s))
}

// repairRunes is Repair without the uppercase step. It keeps byte offsets
// aligned with its input.
func repairRunes(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case 'O', 'Q':
			return '0'
		case 'I', 'L':
			return '1'
		case 'Z':
			return '2'
		case 'S':
			return '5'
		case 'B':
			return '8'
		}
		return r
	}, s)
}

// onlyDigits extracts decimal digits from a string.
func onlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
