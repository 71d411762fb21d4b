// Package labels holds the subject id to display name mapping used by face
// recognition, and its colon-delimited text form.
package labels

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Unknown is the display name for faces the recognizer cannot place.
const Unknown = "Unknown"

// NoMatch is the id the recognizer reports when no subject is close enough.
const NoMatch = -1

// MaxID is the largest id a subject can hold. OpenCV stores labels as C int.
const MaxID = math.MaxInt32 - 1

// MaxNameLen is the longest name, in bytes, that ValidateName accepts.
const MaxNameLen = 256

// maxLineLen bounds a label file line; longer lines are skipped by Parse.
const maxLineLen = 4096

// ErrInvalidName is returned for names that cannot be stored as an id:name line.
var ErrInvalidName = errors.New("invalid subject name")

// ErrIDSpace is returned by NextID once MaxID is taken.
var ErrIDSpace = errors.New("no subject ids left")

// Map is a set of enrolled subjects keyed by id.
// The zero value is not usable; call New.
type Map struct {
	names map[int]string
}

// New returns an empty map.
func New() *Map {
	return &Map{names: make(map[int]string)}
}

// Len returns the number of subjects.
func (m *Map) Len() int {
	return len(m.names)
}

// NextID returns the id a new subject receives: one past the largest id,
// or 1 for an empty map.
func (m *Map) NextID() (int, error) {
	top := 0
	for id := range m.names {
		if id > top {
			top = id
		}
	}
	if top >= MaxID {
		return 0, fmt.Errorf("%w: id %d is taken", ErrIDSpace, top)
	}
	return top + 1, nil
}

// Set records or replaces a subject.
func (m *Map) Set(id int, name string) {
	m.names[id] = name
}

// Name returns the name stored for id.
func (m *Map) Name(id int) (string, bool) {
	name, ok := m.names[id]
	return name, ok
}

// Resolve maps a prediction to a display name. The NoMatch sentinel and ids
// missing from the map resolve to Unknown with known=false.
func (m *Map) Resolve(id int) (name string, known bool) {
	if id == NoMatch {
		return Unknown, false
	}
	if name, ok := m.names[id]; ok {
		return name, true
	}
	return Unknown, false
}

// IDs returns all ids in ascending order.
func (m *Map) IDs() []int {
	ids := make([]int, 0, len(m.names))
	for id := range m.names {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// ValidateName trims a user supplied name and rejects values that would not
// survive a write/parse cycle.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, ":\r\n") {
		return "", fmt.Errorf("%w: %q contains ':' or a line break", ErrInvalidName, name)
	}
	if len(name) > MaxNameLen {
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, MaxNameLen)
	}
	return name, nil
}

// Parse reads id:name lines. Lines that do not split into exactly two parts,
// whose id is not an integer in 1..MaxID, or that are overly long are
// skipped.
func Parse(r io.Reader) (*Map, error) {
	m := New()
	br := bufio.NewReader(r)
	for {
		line, ok, err := readLine(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		parts := strings.Split(strings.TrimRight(line, "\r"), ":")
		if len(parts) != 2 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil || id < 1 || id > MaxID {
			continue
		}
		m.names[id] = parts[1]
	}
	return m, nil
}

// readLine returns the next line without its terminator. ok is false when
// the line exceeds maxLineLen; the rest of it is consumed.
func readLine(br *bufio.Reader) (line string, ok bool, err error) {
	var sb strings.Builder
	ok = true
	for {
		chunk, more, err := br.ReadLine()
		if err != nil {
			if err == io.EOF && sb.Len() > 0 {
				return sb.String(), ok, nil
			}
			return "", false, err
		}
		if ok && sb.Len()+len(chunk) <= maxLineLen {
			sb.Write(chunk)
		} else {
			ok = false
			sb.Reset()
		}
		if !more {
			return sb.String(), ok, nil
		}
	}
}

// WriteTo writes one id:name line per subject, ordered by id.
func (m *Map) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var total int64
	for _, id := range m.IDs() {
		n, err := fmt.Fprintf(bw, "%d:%s\n", id, m.names[id])
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, bw.Flush()
}

// String renders the map in its file form.
func (m *Map) String() string {
	var sb strings.Builder
	_, _ = m.WriteTo(&sb)
	return sb.String()
}
