package keys

// stroke is the usage ID and modifiers needed to produce one printable character
// on a US layout.
type stroke struct {
	usage byte
	mods  byte
}

var asciiStrokes [128]stroke

func init() {
	for c := 'a'; c <= 'z'; c++ {
		asciiStrokes[c] = stroke{usage: UsageA + byte(c-'a')}
		asciiStrokes[c-'a'+'A'] = stroke{usage: UsageA + byte(c-'a'), mods: ModLeftShift}
	}
	for c := '1'; c <= '9'; c++ {
		asciiStrokes[c] = stroke{usage: Usage1 + byte(c-'1')}
	}
	asciiStrokes['0'] = stroke{usage: Usage0}

	shifted := map[byte]byte{
		'!': Usage1, '@': Usage1 + 1, '#': Usage1 + 2, '$': Usage1 + 3, '%': Usage1 + 4,
		'^': Usage1 + 5, '&': Usage1 + 6, '*': Usage1 + 7, '(': Usage1 + 8, ')': Usage0,
		'_': UsageMinus, '+': UsageEqual, '{': UsageLeftBrace, '}': UsageRightBrace,
		'|': UsageBackslash, ':': UsageSemicolon, '"': UsageQuote, '~': UsageGrave,
		'<': UsageComma, '>': UsageDot, '?': UsageSlash,
	}
	for c, u := range shifted {
		asciiStrokes[c] = stroke{usage: u, mods: ModLeftShift}
	}

	plain := map[byte]byte{
		' ': UsageSpace, '-': UsageMinus, '=': UsageEqual, '[': UsageLeftBrace,
		']': UsageRightBrace, '\\': UsageBackslash, ';': UsageSemicolon, '\'': UsageQuote,
		'`': UsageGrave, ',': UsageComma, '.': UsageDot, '/': UsageSlash,
		'\n': UsageEnter, '\t': UsageTab, '\b': UsageBackspace, 0x1b: UsageEscape,
	}
	for c, u := range plain {
		asciiStrokes[c] = stroke{usage: u}
	}
}

// Stroke returns the usage ID and modifier bits that type c, or ok=false when c has
// no key on a US layout.
func Stroke(c byte) (usage, mods byte, ok bool) {
	if c >= 128 {
		return 0, 0, false
	}
	s := asciiStrokes[c]
	if s.usage == UsageNone {
		return 0, 0, false
	}
	return s.usage, s.mods, true
}
