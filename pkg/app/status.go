package app

import (
	"fmt"
	"image/color"
	"io"

	"github.com/MrCodeEU/facewatch/pkg/detection"
	"github.com/MrCodeEU/facewatch/pkg/logging"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
)

// Level classifies a status message.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Status is the one-line status shown on the window and echoed to the
// terminal.
type Status struct {
	text   string
	level  Level
	echoed string
	out    io.Writer
	log    *logrus.Entry
	styles map[Level]lipgloss.Style
}

// NewStatus creates a status line echoing to out. out may be nil.
func NewStatus(out io.Writer) *Status {
	s := &Status{
		out: out,
		log: logging.Component("status"),
	}
	if out != nil {
		r := lipgloss.NewRenderer(out)
		s.styles = map[Level]lipgloss.Style{
			LevelInfo:  r.NewStyle().Foreground(lipgloss.Color("#00ff9f")),
			LevelWarn:  r.NewStyle().Foreground(lipgloss.Color("#ffd75f")).Bold(true),
			LevelError: r.NewStyle().Foreground(lipgloss.Color("#ff5f5f")).Bold(true),
		}
	}
	return s
}

// Infof sets an informational message.
func (s *Status) Infof(format string, args ...interface{}) {
	s.set(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf sets a warning.
func (s *Status) Warnf(format string, args ...interface{}) {
	s.set(LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf sets an error message.
func (s *Status) Errorf(format string, args ...interface{}) {
	s.set(LevelError, fmt.Sprintf(format, args...))
}

// Frame sets a per-frame message, shown on the window only.
func (s *Status) Frame(text string) {
	s.text = text
	s.level = LevelInfo
}

func (s *Status) set(level Level, text string) {
	s.text = text
	s.level = level

	switch level {
	case LevelWarn:
		s.log.Warn(text)
	case LevelError:
		s.log.Error(text)
	default:
		s.log.Info(text)
	}

	if s.out == nil || text == s.echoed {
		return
	}
	s.echoed = text
	fmt.Fprintln(s.out, s.styles[level].Render(text))
}

// Text returns the current message.
func (s *Status) Text() string {
	return s.text
}

// Level returns the level of the current message.
func (s *Status) Level() Level {
	return s.level
}

// Color returns the overlay colour for the current level.
func (s *Status) Color() color.RGBA {
	switch s.level {
	case LevelWarn:
		return color.RGBA{R: 255, G: 215, B: 95, A: 255}
	case LevelError:
		return detection.Red
	default:
		return detection.White
	}
}
