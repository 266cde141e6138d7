// Package nlp converts free-form natural-language date and time phrases
// into normalized calendar dates and clock times.
//
// This file normalizes spelled-out numbers ("ten" -> "10") so the date and
// time grammars only have to deal with digits.
package nlp

import (
	"regexp"
	"strings"
)

// cardinalWords maps spelled-out cardinal numbers to digits for the range a
// calendar day can take (1..31). Compound forms cover both "twenty one" and
// "twenty-one" spellings.
var cardinalWords = map[string]string{
	"one": "1", "two": "2", "three": "3", "four": "4", "five": "5",
	"six": "6", "seven": "7", "eight": "8", "nine": "9", "ten": "10",
	"eleven": "11", "twelve": "12", "thirteen": "13", "fourteen": "14",
	"fifteen": "15", "sixteen": "16", "seventeen": "17", "eighteen": "18",
	"nineteen": "19", "twenty": "20",
	"twenty one": "21", "twenty-one": "21",
	"twenty two": "22", "twenty-two": "22",
	"twenty three": "23", "twenty-three": "23",
	"twenty four": "24", "twenty-four": "24",
	"twenty five": "25", "twenty-five": "25",
	"twenty six": "26", "twenty-six": "26",
	"twenty seven": "27", "twenty-seven": "27",
	"twenty eight": "28", "twenty-eight": "28",
	"twenty nine": "29", "twenty-nine": "29",
	"thirty": "30",
	"thirty one": "31", "thirty-one": "31",
}

// ordinalWords maps spelled-out ordinals to the digit forms the date grammar
// understands ("tenth of april" -> "10th of april").
var ordinalWords = map[string]string{
	"first": "1st", "second": "2nd", "third": "3rd", "fourth": "4th",
	"fifth": "5th", "sixth": "6th", "seventh": "7th", "eighth": "8th",
	"ninth": "9th", "tenth": "10th", "eleventh": "11th", "twelfth": "12th",
	"thirteenth": "13th", "fourteenth": "14th", "fifteenth": "15th",
	"sixteenth": "16th", "seventeenth": "17th", "eighteenth": "18th",
	"nineteenth": "19th", "twentieth": "20th",
	"twenty first": "21st", "twenty-first": "21st",
	"twenty second": "22nd", "twenty-second": "22nd",
	"twenty third": "23rd", "twenty-third": "23rd",
	"twenty fourth": "24th", "twenty-fourth": "24th",
	"twenty fifth": "25th", "twenty-fifth": "25th",
	"twenty sixth": "26th", "twenty-sixth": "26th",
	"twenty seventh": "27th", "twenty-seventh": "27th",
	"twenty eighth": "28th", "twenty-eighth": "28th",
	"twenty ninth": "29th", "twenty-ninth": "29th",
	"thirtieth": "30th",
	"thirty first": "31st", "thirty-first": "31st",
}

// The alternation is leftmost-first, so every compound form ("twenty one",
// "twenty-first") from both tables must precede every simple form: otherwise
// "twenty" would win inside "twenty-first".
var (
	dateNumberRegex = buildWordRegex(
		compoundForms(cardinalWords), compoundForms(ordinalWords),
		simpleForms(cardinalWords), simpleForms(ordinalWords),
	)
	hourNumberRegex = buildWordRegex([]string{
		"one", "two", "three", "four", "five", "six",
		"seven", "eight", "nine", "ten", "eleven", "twelve",
	})
)

func compoundForms(words map[string]string) []string {
	var out []string
	for w := range words {
		if strings.ContainsAny(w, " -") {
			out = append(out, w)
		}
	}
	return out
}

func simpleForms(words map[string]string) []string {
	var out []string
	for w := range words {
		if !strings.ContainsAny(w, " -") {
			out = append(out, w)
		}
	}
	return out
}

func buildWordRegex(groups ...[]string) *regexp.Regexp {
	var alts []string
	for _, g := range groups {
		for _, w := range g {
			alts = append(alts, regexp.QuoteMeta(w))
		}
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
}

// NormalizeDateWords replaces spelled-out cardinals and ordinals (1..31)
// with digit forms, leaving the rest of the text untouched.
func NormalizeDateWords(text string) string {
	return dateNumberRegex.ReplaceAllStringFunc(text, func(match string) string {
		key := strings.ToLower(match)
		if d, ok := cardinalWords[key]; ok {
			return d
		}
		if d, ok := ordinalWords[key]; ok {
			return d
		}
		return match
	})
}

// NormalizeHourWords replaces spelled-out hour numbers (1..12) with digits.
func NormalizeHourWords(text string) string {
	return hourNumberRegex.ReplaceAllStringFunc(text, func(match string) string {
		if d, ok := cardinalWords[strings.ToLower(match)]; ok {
			return d
		}
		return match
	})
}
