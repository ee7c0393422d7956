package lyric

import (
	"cmp"
	"slices"
	"strings"

	"github.com/lisuiheng/lyricbridge/pkg/wire"
)

const (
	// PreferredTranslationLang wins over other translation tracks.
	PreferredTranslationLang = "zh-Hans"
	// ChorusAgent marks lines sung by everyone; they are never duet lines.
	ChorusAgent = "v1000"
)

// ToWire converts doc into the lines sent to lyric displays.
func ToWire(doc Document) wire.LyricDocument {
	if len(doc.Lines) == 0 {
		return nil
	}

	out := make(wire.LyricDocument, 0, len(doc.Lines))
	duets := newDuetTracker()
	for _, line := range doc.Lines {
		duet := duets.flag(line.Agent)
		out = append(out, wire.LyricLine{
			StartMs:        line.StartMs,
			EndMs:          line.EndMs,
			Words:          words(line.Syllables),
			TranslatedText: pickTranslation(line.Translations),
			RomanizedText:  pickFirst(line.Romanizations),
			IsDuet:         duet,
		})

		bg := line.Background
		if bg == nil {
			continue
		}
		start, end := line.StartMs, line.EndMs
		if len(bg.Syllables) > 0 {
			start, end = span(bg.Syllables)
		}
		out = append(out, wire.LyricLine{
			StartMs:        start,
			EndMs:          end,
			Words:          words(bg.Syllables),
			TranslatedText: pickTranslation(bg.Translations),
			RomanizedText:  pickFirst(bg.Romanizations),
			IsBackground:   true,
			IsDuet:         duet,
		})
	}
	// Background vocals may start after the next main line; keep lines
	// ordered by start time, ties in emission order.
	slices.SortStableFunc(out, func(a, b wire.LyricLine) int {
		return cmp.Compare(a.StartMs, b.StartMs)
	})
	return out
}

func words(syllables []Syllable) []wire.LyricWord {
	if len(syllables) == 0 {
		return nil
	}
	out := make([]wire.LyricWord, 0, len(syllables))
	for _, s := range syllables {
		text := s.Text
		if s.EndsWithSpace {
			text += " "
		}
		out = append(out, wire.LyricWord{StartMs: s.StartMs, EndMs: s.EndMs, Text: text})
	}
	return out
}

func span(syllables []Syllable) (start, end uint64) {
	start, end = syllables[0].StartMs, syllables[0].EndMs
	for _, s := range syllables[1:] {
		start = min(start, s.StartMs)
		end = max(end, s.EndMs)
	}
	return start, end
}

func pickTranslation(tracks []Track) string {
	for _, t := range tracks {
		if strings.EqualFold(t.Lang, PreferredTranslationLang) {
			return t.Text
		}
	}
	return pickFirst(tracks)
}

func pickFirst(tracks []Track) string {
	if len(tracks) == 0 {
		return ""
	}
	return tracks[0].Text
}

// duetTracker assigns a side to each agent the first time it sings: the
// first agent takes the left side, every later newcomer takes the side
// opposite to the most recent singer. It assumes two alternating singers.
type duetTracker struct {
	sides map[string]bool
	last  bool
}

func newDuetTracker() *duetTracker {
	return &duetTracker{sides: make(map[string]bool)}
}

func (d *duetTracker) flag(agent string) bool {
	if agent == "" || agent == ChorusAgent {
		return false
	}
	side, ok := d.sides[agent]
	if !ok {
		side = len(d.sides) > 0 && !d.last
		d.sides[agent] = side
	}
	d.last = side
	return side
}
