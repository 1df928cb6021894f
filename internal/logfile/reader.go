// Package logfile splits a human-written experiment log into logical
// records: section headers, entry blocks and free-text notes.
package logfile

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Kind identifies the record type.
type Kind int

const (
	KindSection Kind = iota
	KindEntry
	KindNote
)

// String returns the record kind name.
func (k Kind) String() string {
	switch k {
	case KindSection:
		return "section"
	case KindEntry:
		return "entry"
	default:
		return "note"
	}
}

// Record is one logical unit of the log.
type Record struct {
	Kind  Kind
	Line  int    // 1-based line the record starts on
	Title string // section title, KindSection only
	Text  string // raw block for entries and notes
}

// minSeparator is the shortest run of rule characters treated as a
// section separator line.
const minSeparator = 8

const ruleChars = "=-#*~"

var (
	headerLine = regexp.MustCompile(`^([A-Za-z0-9][\w.\-]*)\s*:(.*)$`)
	// keyValueLine is a body line whose key is a single identifier,
	// optionally quoted; prose such as "more start_steps: 20?" is not.
	keyValueLine = regexp.MustCompile(`^\s*['"]?[A-Za-z_][\w.\-]*['"]?\s*[:=]`)
)

// Read scans the whole log and returns its records in order.
func Read(r io.Reader) ([]Record, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), " \t\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	return split(lines), nil
}

// ReadString is Read over an in-memory log.
func ReadString(s string) []Record {
	recs, _ := Read(strings.NewReader(s))
	return recs
}

func split(lines []string) []Record {
	var recs []Record
	for i := 0; i < len(lines); {
		line := lines[i]
		switch {
		case strings.TrimSpace(line) == "":
			i++

		case IsSeparator(line):
			title, next := sectionTitle(lines, i)
			if title != "" {
				recs = append(recs, Record{Kind: KindSection, Line: i + 1, Title: title})
			}
			i = next

		case !indented(line) && headerLine.MatchString(line):
			end := i + 1
			for end < len(lines) && indented(lines[end]) && strings.TrimSpace(lines[end]) != "" && !IsSeparator(lines[end]) {
				end++
			}
			block := lines[i:end]
			kind := KindNote
			if hasKeyValue(block[1:]) {
				kind = KindEntry
			}
			recs = append(recs, Record{Kind: kind, Line: i + 1, Text: strings.Join(block, "\n")})
			i = end

		default:
			end := i + 1
			for end < len(lines) && strings.TrimSpace(lines[end]) != "" && !IsSeparator(lines[end]) &&
				(indented(lines[end]) || !headerLine.MatchString(lines[end])) {
				end++
			}
			recs = append(recs, Record{Kind: KindNote, Line: i + 1, Text: strings.Join(lines[i:end], "\n")})
			i = end
		}
	}
	return recs
}

// sectionTitle reads the title following a separator at lines[i] and
// returns it along with the index after the header. A separator that is not
// followed by a title line yields an empty title. An entry header directly
// after a separator is only a title when a closing separator follows it;
// otherwise it is left for the entry branch.
func sectionTitle(lines []string, i int) (string, int) {
	j := i + 1
	if j >= len(lines) || strings.TrimSpace(lines[j]) == "" || IsSeparator(lines[j]) {
		return "", j
	}
	if !indented(lines[j]) && headerLine.MatchString(lines[j]) &&
		(j+1 >= len(lines) || !IsSeparator(lines[j+1])) {
		return "", j
	}
	title := strings.Trim(lines[j], ruleChars+" \t")
	j++
	if j < len(lines) && IsSeparator(lines[j]) {
		j++
	}
	return title, j
}

// IsSeparator reports whether line is a run of one repeated rule character.
func IsSeparator(line string) bool {
	s := strings.TrimSpace(line)
	if len(s) < minSeparator || !strings.ContainsRune(ruleChars, rune(s[0])) {
		return false
	}
	return strings.Count(s, s[:1]) == len(s)
}

func indented(line string) bool {
	return len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
}

func hasKeyValue(body []string) bool {
	for _, l := range body {
		if keyValueLine.MatchString(l) {
			return true
		}
	}
	return false
}
