// Package pattern expands file name and command line templates.
//
// A template is literal text mixed with fields of the form
//
//	%[width][.start]type
//
// and, for file name templates only, search fields of the form
// |literal|search|. The literal half ends up in the produced name while
// the search half, which may contain wildcards, is used to probe for
// existing files.
package pattern

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Defaults used when a port has no pattern configured.
const (
	DefaultFilePattern = "%i.prn"
	DefaultUserCommand = ""
)

// Source supplies the job data fields are rendered from. It is queried
// every time a value is rendered, never at parse time.
type Source interface {
	JobTime() time.Time
	JobTitle() string
	JobID() uint32
	UserName() string
	ComputerName() string
	PrinterName() string
	Bin() string
	FileName() string
	Path() string
}

// Kind tags a Segment.
type Kind int

const (
	Literal Kind = iota
	AutoIncrement
	DateTime
	JobMetadata
	Search
)

func (k Kind) String() string {
	switch k {
	case Literal:
		return "literal"
	case AutoIncrement:
		return "auto-increment"
	case DateTime:
		return "date-time"
	case JobMetadata:
		return "job-metadata"
	case Search:
		return "search"
	default:
		return "unknown"
	}
}

// Segment is one piece of a parsed template. Which fields are meaningful
// depends on Kind.
type Segment struct {
	Kind Kind

	// Literal
	Text string

	// AutoIncrement, DateTime, JobMetadata
	Code  byte
	Width int

	// AutoIncrement
	Start   int64
	Current int64
	Max     int64

	// Search
	LiteralHalf []*Segment
	SearchHalf  []*Segment
}

// Pattern is a parsed template bound to a Source.
type Pattern struct {
	template    string
	commandLine bool
	segments    []*Segment
	counters    []*Segment
	src         Source
}

// ParseError reports a malformed template.
type ParseError struct {
	Template string
	Pos      int
	Msg      string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %s at position %d", e.Template, e.Msg, e.Pos)
}

// Parse tokenizes template. commandLine selects the command line grammar:
// %f and %p are allowed, %i and search fields are not, and the forbidden
// file name characters are accepted. src may be nil for validation only.
func Parse(template string, commandLine bool, src Source) (*Pattern, error) {
	if !commandLine && !CheckPattern(template) {
		return nil, &ParseError{Template: template, Pos: 0, Msg: "forbidden character or unbalanced search field"}
	}
	if src == nil {
		src = emptySource{}
	}

	p := &Pattern{template: template, commandLine: commandLine, src: src}
	ps := &parser{template: template, runes: []rune(template), commandLine: commandLine}
	segs, err := ps.parse(0, len(ps.runes), false)
	if err != nil {
		return nil, err
	}
	p.segments = segs
	p.counters = collectCounters(segs, nil)
	p.Reset()
	return p, nil
}

// CheckPattern validates the characters of a file name template.
// / : " < > are never allowed, * and ? only inside the search half of a
// |literal|search| triplet, and every triplet must be complete.
func CheckPattern(template string) bool {
	pipes := 0
	for _, r := range template {
		switch r {
		case '/', ':', '"', '<', '>', '\r', '\n':
			return false
		case '|':
			pipes = (pipes + 1) % 3
		case '*', '?':
			if pipes != 2 {
				return false
			}
		}
	}
	return pipes == 0
}

// String returns the template the pattern was parsed from.
func (p *Pattern) String() string {
	return p.template
}

// Segments returns the top level segments.
func (p *Pattern) Segments() []*Segment {
	return p.segments
}

// HasCounter reports whether NextValue can ever succeed.
func (p *Pattern) HasCounter() bool {
	return len(p.counters) > 0
}

// Reset rewinds every counter to its start value.
func (p *Pattern) Reset() {
	for _, c := range p.counters {
		c.Current = c.Start
	}
}

// NextValue advances the rightmost counter. A counter that would exceed its
// width wraps to its start value and carries into the counter on its left.
// It returns false once the leftmost counter overflows, or when the
// template has no counter at all.
func (p *Pattern) NextValue() bool {
	for i := len(p.counters) - 1; i >= 0; i-- {
		c := p.counters[i]
		if c.Current < c.Max {
			c.Current++
			return true
		}
		c.Current = c.Start
	}
	if len(p.counters) > 0 {
		// every counter wrapped; put them back at their last value so
		// Value keeps describing the final candidate
		for _, c := range p.counters {
			c.Current = c.Max
		}
	}
	return false
}

// Value renders the template with the literal half of every search field.
func (p *Pattern) Value() string {
	var b strings.Builder
	p.render(&b, p.segments, false)
	return b.String()
}

// SearchValue renders the template with the search half of every search
// field. The result may contain wildcards.
func (p *Pattern) SearchValue() string {
	var b strings.Builder
	p.render(&b, p.segments, true)
	return b.String()
}

func (p *Pattern) render(b *strings.Builder, segs []*Segment, search bool) {
	for _, s := range segs {
		switch s.Kind {
		case Literal:
			b.WriteString(s.Text)
		case AutoIncrement:
			b.WriteString(pad(strconv.FormatInt(s.Current, 10), s.Width, true))
		case DateTime:
			b.WriteString(p.dateTime(s))
		case JobMetadata:
			b.WriteString(p.metadata(s))
		case Search:
			if search {
				p.render(b, s.SearchHalf, true)
			} else {
				p.render(b, s.LiteralHalf, false)
			}
		}
	}
}

var dayNames = [...]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

func (p *Pattern) dateTime(s *Segment) string {
	t := p.src.JobTime()
	two := func(n int) string { return pad(fmt.Sprintf("%02d", n), s.Width, true) }

	switch s.Code {
	case 'y':
		return two(t.Year() % 100)
	case 'Y':
		return pad(fmt.Sprintf("%04d", t.Year()), s.Width, true)
	case 'm':
		return two(int(t.Month()))
	case 'M':
		return pad(t.Month().String(), s.Width, false)
	case 'd':
		return two(t.Day())
	case 'D':
		return pad(dayNames[t.Weekday()], s.Width, false)
	case 'h':
		h := t.Hour() % 12
		if h == 0 {
			h = 12
		}
		return two(h)
	case 'H':
		return two(t.Hour())
	case 'n':
		return two(t.Minute())
	case 's':
		return two(t.Second())
	}
	return ""
}

func (p *Pattern) metadata(s *Segment) string {
	var v string
	switch s.Code {
	case 'j':
		return pad(strconv.FormatUint(uint64(p.src.JobID()), 10), s.Width, true)
	case 't':
		v = p.clean(p.src.JobTitle())
	case 'T':
		v = tempDir()
	case 'u':
		v = p.clean(p.src.UserName())
	case 'c':
		v = p.clean(strings.TrimLeft(p.src.ComputerName(), `\`))
	case 'r':
		v = p.clean(p.src.PrinterName())
	case 'b':
		v = p.clean(p.src.Bin())
	case 'f':
		v = p.src.FileName()
	case 'p':
		v = p.src.Path()
	}
	return pad(v, s.Width, false)
}

// clean keeps job supplied text from introducing separators or reserved
// characters into a file name.
func (p *Pattern) clean(v string) string {
	if p.commandLine {
		return v
	}
	return fileNameReplacer.Replace(v)
}

var fileNameReplacer = strings.NewReplacer(
	`\`, "_", "/", "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_", "\r", "_", "\n", "_",
)

// pad applies the field width. Numbers are left padded with zeros and
// strings right padded with spaces; a negative width pads the other side
// with spaces. Values longer than the width are never truncated.
func pad(v string, width int, numeric bool) string {
	n := width
	if n < 0 {
		n = -n
	}
	missing := n - len([]rune(v))
	if missing <= 0 {
		return v
	}
	switch {
	case numeric && width > 0:
		return strings.Repeat("0", missing) + v
	case numeric:
		return v + strings.Repeat(" ", missing)
	case width > 0:
		return v + strings.Repeat(" ", missing)
	default:
		return strings.Repeat(" ", missing) + v
	}
}

func collectCounters(segs []*Segment, out []*Segment) []*Segment {
	for _, s := range segs {
		switch s.Kind {
		case AutoIncrement:
			out = append(out, s)
		case Search:
			out = collectCounters(s.LiteralHalf, out)
		}
	}
	return out
}

func counterMax(width int) int64 {
	if width < 0 {
		width = -width
	}
	if width == 0 {
		return math.MaxInt32
	}
	return int64(math.Pow10(width)) - 1
}
