package labeltext

import (
	"regexp"
	"strings"
)

const (
	minTagLength = 5
	minRGLength  = 8

	// RG identifiers are long encoded numbers.
	minRGFallbackDigits = 11
	minTagDigits        = 6
	maxTagDigits        = 10
)

var (
	numericTokenRE = regexp.MustCompile(`[0-9][0-9-]{5,24}`)
	tagLabelRE     = regexp.MustCompile(`(?:N[UV]MERO\s+)?SER[I1][A1I][L1]`)
	rgLabelRE      = regexp.MustCompile(`\bR\s*\.?\s*G\s*\.?\b`)
	ativoFixoRE    = regexp.MustCompile(`AT[I1]V[O0]\s+F[I1]X[O0]\s*(?:[0-9]+\s+)?([0-9]{5,24})`)
)

// Codes holds the candidates recovered from one label text. Either field may
// be empty.
type Codes struct {
	RGCode  string `json:"rg_code"`
	TagCode string `json:"tag_code"`
}

// TagFallback derives a tag from a known RG when nothing on the label looked
// like a tag. It returns "" when it has no opinion.
type TagFallback func(rgCode string) string

// SuffixTagFallback returns the last n digits of the RG. In the deployments
// this was built for the tag is frequently a suffix of the RG; that does not
// hold everywhere, so callers can swap or disable it.
func SuffixTagFallback(n int) TagFallback {
	return func(rgCode string) string {
		digits := onlyDigits(rgCode)
		if n <= 0 || len(digits) < n {
			return ""
		}
		return digits[len(digits)-n:]
	}
}

// Extractor recovers RG and tag codes from noisy label text.
type Extractor struct {
	// TagFallback runs last when no tag was found. Nil disables it.
	TagFallback TagFallback
}

// NewExtractor returns an Extractor using the seven digit RG suffix fallback.
func NewExtractor() *Extractor {
	return &Extractor{TagFallback: SuffixTagFallback(7)}
}

var defaultExtractor = NewExtractor()

// Extract runs the default Extractor.
func Extract(rawText string) Codes {
	return defaultExtractor.Extract(rawText)
}

// Extract never fails: unreadable input degrades to empty candidates.
func (e *Extractor) Extract(rawText string) Codes {
	normalized := Normalize(rawText)
	lines := splitLines(normalized)

	var codes Codes
	for i, line := range lines {
		next := ""
		if i+1 < len(lines) {
			next = lines[i+1]
		}
		if codes.TagCode == "" {
			codes.TagCode = labeledCandidate(line, next, tagLabelRE, minTagLength, true)
		}
		if codes.RGCode == "" {
			codes.RGCode = labeledCandidate(line, next, rgLabelRE, minRGLength, false)
		}
	}

	repaired := repairRunes(normalized)
	if codes.TagCode == "" {
		if m := ativoFixoRE.FindStringSubmatch(repaired); len(m) == 2 {
			codes.TagCode = Sanitize(m[1])
		}
	}

	pool := fallbackPool(repaired)

	if codes.RGCode == "" {
		best, bestDigits := "", 0
		for _, token := range pool {
			n := len(onlyDigits(token))
			if n >= minRGFallbackDigits && n > bestDigits {
				best, bestDigits = token, n
			}
		}
		codes.RGCode = best
	}

	if codes.TagCode == "" {
		rgDigits := onlyDigits(codes.RGCode)
		for _, token := range pool {
			digits := onlyDigits(token)
			if len(digits) < minTagDigits || len(digits) > maxTagDigits {
				continue
			}
			if rgDigits != "" && strings.Contains(rgDigits, digits) {
				continue
			}
			codes.TagCode = token
			break
		}
	}

	if codes.TagCode == "" && codes.RGCode != "" && e.TagFallback != nil {
		codes.TagCode = Sanitize(e.TagFallback(codes.RGCode))
	}
	return codes
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// fallbackPool returns the unique sanitized numeric-like tokens in order of
// appearance.
func fallbackPool(repaired string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, raw := range numericTokenRE.FindAllString(repaired, -1) {
		token := Sanitize(raw)
		if token == "" {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}

// labeledCandidate looks for a code after the label on line, then on the
// following line.
func labeledCandidate(line, next string, label *regexp.Regexp, minLen int, keepPrefix bool) string {
	loc := label.FindStringIndex(line)
	if loc == nil {
		return ""
	}
	if c := numericCandidate(line[loc[1]:], keepPrefix); len(c) >= minLen {
		return c
	}
	if c := numericCandidate(next, keepPrefix); len(c) >= minLen {
		return c
	}
	return ""
}

// numericCandidate finds the first numeric-like token of segment after noise
// repair. With keepPrefix, letters that open the same word in the unrepaired
// segment are restored, so "AB12-34567" survives as a serial. A prefix made
// only of confusable letters ("O1234567") is noise and stays repaired.
func numericCandidate(segment string, keepPrefix bool) string {
	repaired := repairRunes(segment)
	loc := numericTokenRE.FindStringIndex(repaired)
	if loc == nil {
		return ""
	}
	if !keepPrefix || len(repaired) != len(segment) {
		return Sanitize(repaired[loc[0]:loc[1]])
	}
	start := loc[0]
	for start > 0 && isUpperAlnum(segment[start-1]) {
		start--
	}
	digit := start
	for digit < loc[1] && !isDigit(segment[digit]) {
		digit++
	}
	if digit == loc[1] || !hasPlainLetter(segment[start:digit], repaired[start:digit]) {
		return Sanitize(repaired[loc[0]:loc[1]])
	}
	return Sanitize(segment[start:digit] + repaired[digit:loc[1]])
}

// hasPlainLetter reports whether prefix holds a letter that noise repair
// leaves untouched.
func hasPlainLetter(prefix, repaired string) bool {
	for i := 0; i < len(prefix); i++ {
		if prefix[i] >= 'A' && prefix[i] <= 'Z' && prefix[i] == repaired[i] {
			return true
		}
	}
	return false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isUpperAlnum(b byte) bool {
	return isDigit(b) || (b >= 'A' && b <= 'Z')
}
