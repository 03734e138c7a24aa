// Package textutil provides the text normalization helpers used when turning
// feed markup into mail subjects and bodies.
package textutil

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultWordLimit is the word budget for titles synthesized from a body.
const DefaultWordLimit = 7

// entityReplacer decodes the small set of named entities that show up in
// practice in feed titles and descriptions.
var entityReplacer = strings.NewReplacer(
	"&apos;", "'",
	"&acirc;", "'",
	"&amp;", "&",
	"&quot;", `"`,
	"&nbsp;", " ",
	"&rdquo;", `"`,
	"&ldquo;", `"`,
	"&rsquo;", "'",
	"&lsquo;", "'",
)

var (
	tagRe     = regexp.MustCompile(`<.+?>`)
	newlineRe = regexp.MustCompile(`\n+|\r+`)
)

// DecodeEntities replaces the recognized named entities with their characters.
func DecodeEntities(text string) string {
	return entityReplacer.Replace(text)
}

// StripMarkup decodes entities, then removes every angle-bracket-delimited tag.
// Tags spanning a newline are left alone.
func StripMarkup(text string) string {
	return tagRe.ReplaceAllString(entityReplacer.Replace(text), "")
}

// CollapseNewlines replaces each run of line feeds or carriage returns with a
// single space.
func CollapseNewlines(text string) string {
	return newlineRe.ReplaceAllString(text, " ")
}

// FirstWords returns up to limit whitespace-delimited words from text, with
// newlines collapsed. When the pattern finds no match (an empty string, or a
// single word with no trailing whitespace) the input is returned unchanged.
func FirstWords(text string, limit int) string {
	re, err := regexp.Compile(fmt.Sprintf(`(.+?\s+){1,%d}`, limit))
	if err != nil {
		return text
	}
	match := re.FindString(text)
	if match == "" {
		return text
	}
	return CollapseNewlines(match)
}
