package format

import (
	"regexp"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ParseResult contains plain text and message entities
type ParseResult struct {
	Text     string
	Entities []tgbotapi.MessageEntity
}

var (
	headerRe      = regexp.MustCompile(`(?m)^#{1,6}\s+(.+?)$`)
	boldRe        = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
	strikeRe      = regexp.MustCompile(`~~(.+?)~~`)
	codeRe        = regexp.MustCompile("`([^`]+?)`")
	singleStarRe  = regexp.MustCompile(`(?:^|[^*])(\*([^*\n]+?)\*)(?:[^*]|$)`)
	singleUnderRe = regexp.MustCompile(`(?:^|[^_\w])(_([^_\n]+?)_)(?:[^_\w]|$)`)
)

// UTF16Len returns the length of s in UTF-16 code units, which is what
// Telegram entity offsets count.
func UTF16Len(s string) int {
	length := 0
	for _, b := range []byte(s) {
		if (b & 0xc0) != 0x80 {
			if b >= 0xf0 {
				length += 2
			} else {
				length++
			}
		}
	}
	return length
}

// span is an entity in byte positions of the text being rewritten.
type span struct {
	kind       string
	start, end int
}

type parser struct {
	text  string
	spans []span
}

// cut removes text[a:b] and moves every recorded span to match.
func (p *parser) cut(a, b int) {
	n := b - a
	move := func(pos int) int {
		switch {
		case pos >= b:
			return pos - n
		case pos > a:
			return a
		default:
			return pos
		}
	}
	for i := range p.spans {
		p.spans[i].start = move(p.spans[i].start)
		p.spans[i].end = move(p.spans[i].end)
	}
	p.text = p.text[:a] + p.text[b:]
}

// strip turns every match of re into a span of kind. outer and inner are
// the submatch groups holding the marked-up run and its content.
func (p *parser) strip(re *regexp.Regexp, kind string, outer, inner []int) {
	searchStart := 0
	for searchStart < len(p.text) {
		loc := re.FindStringSubmatchIndex(p.text[searchStart:])
		if loc == nil {
			return
		}
		o, in := pick(loc, outer), pick(loc, inner)
		if o == nil || in == nil {
			return
		}
		os, oe := searchStart+o[0], searchStart+o[1]
		is, ie := searchStart+in[0], searchStart+in[1]
		if kind != "code" && p.insideCode(os, oe) {
			searchStart = oe
			continue
		}

		p.spans = append(p.spans, span{kind: kind, start: is, end: ie})
		// Right marker first so the left cut sees unshifted positions.
		p.cut(ie, oe)
		p.cut(os, is)
		searchStart = ie - (is - os)
	}
}

func (p *parser) insideCode(a, b int) bool {
	for _, s := range p.spans {
		if s.kind == "code" && a < s.end && b > s.start {
			return true
		}
	}
	return false
}

func pick(loc []int, groups []int) []int {
	for _, g := range groups {
		if 2*g+1 < len(loc) && loc[2*g] != -1 {
			return loc[2*g : 2*g+2]
		}
	}
	return nil
}

// ParseMarkdown converts a small Markdown subset into Telegram entities:
// **bold** / __bold__, ~~strike~~, `code`, *italic* / _italic_, and
// "# Header" lines which become bold.
func ParseMarkdown(text string) ParseResult {
	p := &parser{text: headerRe.ReplaceAllString(text, "**$1**")}

	p.strip(codeRe, "code", []int{0}, []int{1})
	p.strip(boldRe, "bold", []int{0}, []int{1, 2})
	p.strip(strikeRe, "strikethrough", []int{0}, []int{1})
	p.strip(singleStarRe, "italic", []int{1}, []int{2})
	p.strip(singleUnderRe, "italic", []int{1}, []int{2})

	result := strings.TrimRight(p.text, " \n")
	entities := make([]tgbotapi.MessageEntity, 0, len(p.spans))
	for _, s := range p.spans {
		end := min(s.end, len(result))
		if s.start >= end {
			continue
		}
		entities = append(entities, tgbotapi.MessageEntity{
			Type:   s.kind,
			Offset: UTF16Len(result[:s.start]),
			Length: UTF16Len(result[s.start:end]),
		})
	}
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Offset < entities[j].Offset
	})

	return ParseResult{Text: result, Entities: entities}
}
