// Package textnorm converts Japanese names into the keys used to group and
// match clients and representatives.
package textnorm

import (
	"strings"
	"unicode"
)

const (
	halfDakuten    = 'ﾞ'
	halfHandakuten = 'ﾟ'
)

var halfToFull = map[rune]rune{
	'ｱ': 'ア', 'ｲ': 'イ', 'ｳ': 'ウ', 'ｴ': 'エ', 'ｵ': 'オ',
	'ｶ': 'カ', 'ｷ': 'キ', 'ｸ': 'ク', 'ｹ': 'ケ', 'ｺ': 'コ',
	'ｻ': 'サ', 'ｼ': 'シ', 'ｽ': 'ス', 'ｾ': 'セ', 'ｿ': 'ソ',
	'ﾀ': 'タ', 'ﾁ': 'チ', 'ﾂ': 'ツ', 'ﾃ': 'テ', 'ﾄ': 'ト',
	'ﾅ': 'ナ', 'ﾆ': 'ニ', 'ﾇ': 'ヌ', 'ﾈ': 'ネ', 'ﾉ': 'ノ',
	'ﾊ': 'ハ', 'ﾋ': 'ヒ', 'ﾌ': 'フ', 'ﾍ': 'ヘ', 'ﾎ': 'ホ',
	'ﾏ': 'マ', 'ﾐ': 'ミ', 'ﾑ': 'ム', 'ﾒ': 'メ', 'ﾓ': 'モ',
	'ﾔ': 'ヤ', 'ﾕ': 'ユ', 'ﾖ': 'ヨ',
	'ﾗ': 'ラ', 'ﾘ': 'リ', 'ﾙ': 'ル', 'ﾚ': 'レ', 'ﾛ': 'ロ',
	'ﾜ': 'ワ', 'ｦ': 'ヲ', 'ﾝ': 'ン',
	'ｧ': 'ァ', 'ｨ': 'ィ', 'ｩ': 'ゥ', 'ｪ': 'ェ', 'ｫ': 'ォ',
	'ｬ': 'ャ', 'ｭ': 'ュ', 'ｮ': 'ョ',
	'ｯ': 'ッ', 'ｰ': 'ー',
	halfDakuten: '゛', halfHandakuten: '゜',
}

var dakuten = map[rune]rune{
	'カ': 'ガ', 'キ': 'ギ', 'ク': 'グ', 'ケ': 'ゲ', 'コ': 'ゴ',
	'サ': 'ザ', 'シ': 'ジ', 'ス': 'ズ', 'セ': 'ゼ', 'ソ': 'ゾ',
	'タ': 'ダ', 'チ': 'ヂ', 'ツ': 'ヅ', 'テ': 'デ', 'ト': 'ド',
	'ハ': 'バ', 'ヒ': 'ビ', 'フ': 'ブ', 'ヘ': 'ベ', 'ホ': 'ボ',
	'ウ': 'ヴ',
}

var handakuten = map[rune]rune{
	'ハ': 'パ', 'ヒ': 'ピ', 'フ': 'プ', 'ヘ': 'ペ', 'ホ': 'ポ',
}

// CorporateSuffixes are removed from client names in this order. No entry is
// a substring of another entry, and removing one never splices together a
// different entry out of the surrounding text of a realistic name, so the
// single pass is order-insensitive in practice.
var CorporateSuffixes = []string{
	"株式会社", "㈱", "（株）", "(株)",
	"有限会社", "㈲", "（有）", "(有)",
	"合同会社", "合資会社", "合名会社",
	"一般社団法人", "一般財団法人",
	"公益社団法人", "公益財団法人",
}

// ToFullWidthKana maps half-width katakana to full-width. A voicing mark
// directly after a convertible kana is folded into the voiced form.
func ToFullWidthKana(s string) string {
	if s == "" {
		return ""
	}

	src := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(src); i++ {
		ch := src[i]
		if full, ok := halfToFull[ch]; ok {
			ch = full
		}

		if i+1 < len(src) {
			next := src[i+1]
			if next == halfDakuten {
				if voiced, ok := dakuten[ch]; ok {
					ch = voiced
					i++
				}
			} else if next == halfHandakuten {
				if voiced, ok := handakuten[ch]; ok {
					ch = voiced
					i++
				}
			}
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// NormalizeClientName returns the key under which two spellings of the same
// billing entity compare equal.
func NormalizeClientName(name string) string {
	if name == "" {
		return ""
	}

	normalized := ToFullWidthKana(name)
	for _, suffix := range CorporateSuffixes {
		normalized = strings.ReplaceAll(normalized, suffix, "")
	}
	return stripSpaces(normalized)
}

// ExtractFamilyName returns the first whitespace-delimited token of a full name.
func ExtractFamilyName(fullName string) string {
	if fullName == "" {
		return ""
	}
	parts := strings.FieldsFunc(fullName, unicode.IsSpace)
	if len(parts) == 0 {
		return fullName
	}
	return parts[0]
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
