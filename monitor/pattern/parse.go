package pattern

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type parser struct {
	template    string
	runes       []rune
	commandLine bool
}

func (ps *parser) fail(pos int, msg string) error {
	return &ParseError{Template: ps.template, Pos: pos, Msg: msg}
}

// parse tokenizes runes[from:to]. inSearch is set while parsing the search
// half of a search field.
func (ps *parser) parse(from, to int, inSearch bool) ([]*Segment, error) {
	var segs []*Segment
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, &Segment{Kind: Literal, Text: lit.String()})
			lit.Reset()
		}
	}

	for i := from; i < to; i++ {
		r := ps.runes[i]
		switch {
		case r == '%':
			if i+1 < to && ps.runes[i+1] == '%' {
				lit.WriteRune('%')
				i++
				continue
			}
			seg, next, err := ps.field(i, to, inSearch)
			if err != nil {
				return nil, err
			}
			flush()
			segs = append(segs, seg)
			i = next - 1
		case r == '|' && !ps.commandLine:
			if from != 0 || to != len(ps.runes) {
				return nil, ps.fail(i, "nested search field")
			}
			mid := ps.indexPipe(i+1, to)
			end := -1
			if mid >= 0 {
				end = ps.indexPipe(mid+1, to)
			}
			if end < 0 {
				return nil, ps.fail(i, "unterminated search field")
			}
			literal, err := ps.parse(i+1, mid, false)
			if err != nil {
				return nil, err
			}
			search, err := ps.parse(mid+1, end, true)
			if err != nil {
				return nil, err
			}
			flush()
			segs = append(segs, &Segment{Kind: Search, LiteralHalf: literal, SearchHalf: search})
			i = end
		default:
			lit.WriteRune(r)
		}
	}
	flush()
	return segs, nil
}

func (ps *parser) indexPipe(from, to int) int {
	for i := from; i < to; i++ {
		if ps.runes[i] == '|' {
			return i
		}
	}
	return -1
}

// field parses %[-][width][.start]type starting at the percent sign and
// returns the segment and the index just past the type code.
func (ps *parser) field(at, to int, inSearch bool) (*Segment, int, error) {
	i := at + 1
	negative := false
	if i < to && ps.runes[i] == '-' {
		negative = true
		i++
	}

	widthDigits := ps.digits(i, to)
	i += len(widthDigits)

	var startDigits string
	hasStart := false
	if i < to && ps.runes[i] == '.' {
		hasStart = true
		i++
		startDigits = ps.digits(i, to)
		i += len(startDigits)
		if startDigits == "" {
			return nil, 0, ps.fail(i, "missing start value")
		}
	}

	if i >= to {
		return nil, 0, ps.fail(at, "missing field type")
	}
	code := ps.runes[i]
	i++

	seg := &Segment{Code: byte(code)}
	switch code {
	case 'i':
		if ps.commandLine {
			return nil, 0, ps.fail(at, "%i is only valid in a file name pattern")
		}
		if inSearch {
			return nil, 0, ps.fail(at, "%i is not allowed in a search string")
		}
		seg.Kind = AutoIncrement
	case 'f', 'p':
		if !ps.commandLine {
			return nil, 0, ps.fail(at, "%"+string(code)+" is only valid in a user command")
		}
		seg.Kind = JobMetadata
	case 'y', 'Y', 'm', 'M', 'd', 'D', 'h', 'H', 'n', 's':
		seg.Kind = DateTime
	case 't', 'T', 'j', 'u', 'c', 'r', 'b':
		seg.Kind = JobMetadata
	default:
		return nil, 0, ps.fail(at, "unknown field type "+strconv.QuoteRune(code))
	}

	maxWidth := 99
	if seg.Kind == AutoIncrement {
		maxWidth = 9
	}
	width := 0
	if widthDigits != "" {
		w, err := strconv.Atoi(widthDigits)
		if err != nil || w > maxWidth {
			return nil, 0, ps.fail(at, "width out of range")
		}
		width = w
	} else if seg.Kind == AutoIncrement {
		width = 4
	}
	if negative {
		width = -width
	}
	seg.Width = width

	if hasStart {
		if seg.Kind != AutoIncrement {
			return nil, 0, ps.fail(at, "start value is only valid for %i")
		}
		start, err := strconv.ParseInt(startDigits, 10, 64)
		if err != nil {
			return nil, 0, ps.fail(at, "start value out of range")
		}
		seg.Start = start
	} else if seg.Kind == AutoIncrement {
		seg.Start = 1
	}

	if seg.Kind == AutoIncrement {
		seg.Max = counterMax(width)
		if seg.Start > seg.Max {
			return nil, 0, ps.fail(at, "start value does not fit the width")
		}
	}
	return seg, i, nil
}

func (ps *parser) digits(from, to int) string {
	i := from
	for i < to && ps.runes[i] >= '0' && ps.runes[i] <= '9' {
		i++
	}
	return string(ps.runes[from:i])
}

func tempDir() string {
	return strings.TrimRight(os.TempDir(), `\/`)
}

type emptySource struct{}

func (emptySource) JobTime() time.Time   { return time.Now() }
func (emptySource) JobTitle() string     { return "" }
func (emptySource) JobID() uint32        { return 0 }
func (emptySource) UserName() string     { return "" }
func (emptySource) ComputerName() string { return "" }
func (emptySource) PrinterName() string  { return "" }
func (emptySource) Bin() string          { return "" }
func (emptySource) FileName() string     { return "" }
func (emptySource) Path() string         { return "" }
