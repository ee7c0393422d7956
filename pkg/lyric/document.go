// Package lyric holds the parsed-lyrics document produced by the lyric
// parser and converts it into wire lyric lines.
package lyric

// Document is a parsed lyric file.
type Document struct {
	Lines []Line
}

// Line is one main vocal line.
type Line struct {
	StartMs       uint64
	EndMs         uint64
	Syllables     []Syllable
	Translations  []Track
	Romanizations []Track
	// Agent identifies the singer; empty when the source has no agents.
	Agent      string
	Background *Section
}

// Syllable is one timed piece of text.
type Syllable struct {
	StartMs       uint64
	EndMs         uint64
	Text          string
	EndsWithSpace bool
}

// Track is a translation or romanization in one language.
type Track struct {
	Lang string
	Text string
}

// Section is a background vocal part attached to a line.
type Section struct {
	Syllables     []Syllable
	Translations  []Track
	Romanizations []Track
}
