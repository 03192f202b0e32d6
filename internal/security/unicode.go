package security

import (
	"unicode"
)

// UnicodeReport accumulates spoofing signals found in text.
type UnicodeReport struct {
	BiDiControls      int  `json:"bidi_controls"`
	Invisible         int  `json:"invisible"`
	Confusables       int  `json:"confusables"`
	MixedScriptWords  int  `json:"mixed_script_words"`
	RiskScore         int  `json:"risk_score"`
	ScannedRunes      int  `json:"scanned_runes"`
	ScanLimitExceeded bool `json:"scan_limit_exceeded"`
}

// Risk weights.
const (
	weightBiDi        = 3
	weightMixedScript = 2
	weightConfusable  = 1
	weightInvisible   = 1
)

func isBiDiControl(r rune) bool {
	switch {
	case r >= 0x202A && r <= 0x202E, r >= 0x2066 && r <= 0x2069:
		return true
	case r == 0x200E, r == 0x200F, r == 0x061C:
		return true
	}
	return false
}

func isInvisible(r rune) bool {
	switch {
	case r >= 0x200B && r <= 0x200D, r >= 0x2060 && r <= 0x2064:
		return true
	case r == 0xFEFF, r == 0x00AD, r == 0x180E, r == 0x034F, r == 0x3164, r == 0x115F, r == 0x1160:
		return true
	}
	return false
}

// confusables maps Cyrillic and Greek letters to the Latin letter they
// render like.
var confusables = map[rune]rune{
	'а': 'a', 'е': 'e', 'о': 'o', 'р': 'p', 'с': 'c', 'у': 'y', 'х': 'x',
	'і': 'i', 'ј': 'j', 'ѕ': 's', 'ԁ': 'd', 'һ': 'h', 'ԛ': 'q', 'ԝ': 'w',
	'А': 'A', 'В': 'B', 'Е': 'E', 'К': 'K', 'М': 'M', 'Н': 'H', 'О': 'O',
	'Р': 'P', 'С': 'C', 'Т': 'T', 'Х': 'X', 'І': 'I', 'Ј': 'J', 'Ѕ': 'S',
	'ο': 'o', 'α': 'a', 'ν': 'v', 'ρ': 'p', 'ι': 'i', 'κ': 'k', 'υ': 'u',
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Ζ': 'Z', 'Η': 'H', 'Ι': 'I', 'Κ': 'K',
	'Μ': 'M', 'Ν': 'N', 'Ο': 'O', 'Ρ': 'P', 'Τ': 'T', 'Υ': 'Y', 'Χ': 'X',
}

type script uint8

const (
	scriptNone script = iota
	scriptLatin
	scriptCyrillic
	scriptGreek
	scriptArmenian
	scriptCherokee
	scriptOther
)

func scriptOf(r rune) script {
	switch {
	case !unicode.IsLetter(r):
		return scriptNone
	case unicode.Is(unicode.Latin, r):
		return scriptLatin
	case unicode.Is(unicode.Cyrillic, r):
		return scriptCyrillic
	case unicode.Is(unicode.Greek, r):
		return scriptGreek
	case unicode.Is(unicode.Armenian, r):
		return scriptArmenian
	case unicode.Is(unicode.Cherokee, r):
		return scriptCherokee
	}
	return scriptOther
}

type wordState struct {
	scripts     map[script]bool
	letters     int
	confusable  int
	latinLetter bool
}

func (w *wordState) reset() {
	clear(w.scripts)
	w.letters, w.confusable, w.latinLetter = 0, 0, false
}

// ScanUnicode inspects at most maxRunes runes of text. When text is longer
// the report has ScanLimitExceeded set. Confusables are counted only in
// words that look like Latin spoofs: words that mix scripts, or words made
// entirely of look-alike letters.
func ScanUnicode(text string, maxRunes int) UnicodeReport {
	var rep UnicodeReport
	w := wordState{scripts: make(map[script]bool, 4)}

	endWord := func() {
		if w.letters == 0 {
			return
		}
		mixed := false
		if len(w.scripts) > 1 && (w.scripts[scriptLatin] || w.scripts[scriptCyrillic] || w.scripts[scriptGreek]) {
			mixed = true
			rep.MixedScriptWords++
		}
		if mixed || (w.confusable == w.letters && w.letters > 1) {
			rep.Confusables += w.confusable
		}
		w.reset()
	}

	for _, r := range text {
		if rep.ScannedRunes >= maxRunes {
			rep.ScanLimitExceeded = true
			break
		}
		rep.ScannedRunes++

		switch {
		case isBiDiControl(r):
			rep.BiDiControls++
			continue
		case isInvisible(r):
			// Zero-width characters often sit inside a word to break it.
			rep.Invisible++
			continue
		}

		s := scriptOf(r)
		if s == scriptNone {
			if unicode.Is(unicode.Mn, r) {
				continue
			}
			endWord()
			continue
		}
		w.letters++
		w.scripts[s] = true
		if _, ok := confusables[r]; ok {
			w.confusable++
		}
	}
	endWord()

	rep.RiskScore = weightBiDi*rep.BiDiControls +
		weightMixedScript*rep.MixedScriptWords +
		weightConfusable*rep.Confusables +
		weightInvisible*rep.Invisible
	return rep
}
