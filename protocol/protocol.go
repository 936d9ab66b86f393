// Package protocol implements the line-oriented command format of the
// control socket: TYPE|DESTINATION|CONTENT with backslash escaping, one
// command per line. The destination slot carries the conversation or
// message id a command targets.
package protocol

import (
	"errors"
	"strings"
)

var ErrInvalidPacket = errors.New("invalid packet format")

type Packet struct {
	Type        string
	Destination string
	Content     string
	Fields      []string // Content split on unescaped |
}

func ParsePacket(line string) (*Packet, error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	parts := splitUnescaped(line, '|')
	if len(parts) == 0 || parts[0] == "" {
		return nil, ErrInvalidPacket
	}

	pkt := &Packet{Type: unescape(parts[0])}

	if len(parts) == 2 {
		// TYPE|CONTENT
		pkt.Content = unescape(parts[1])
		pkt.Fields = splitUnescaped(pkt.Content, '|')
	} else if len(parts) >= 3 {
		// TYPE|DESTINATION|CONTENT
		pkt.Destination = unescape(parts[1])
		pkt.Content = unescape(parts[2])
		pkt.Fields = splitUnescaped(pkt.Content, '|')
	}

	return pkt, nil
}

// FormatPacket renders a packet line, escaping each field separately.
func FormatPacket(pktType string, fields ...string) string {
	parts := []string{Escape(pktType)}
	for _, field := range fields {
		parts = append(parts, Escape(field))
	}
	return strings.Join(parts, "|") + "\n"
}

// splitUnescaped splits s on delimiter, leaving escaped delimiters alone.
func splitUnescaped(s string, delimiter rune) []string {
	var parts []string
	var current strings.Builder
	escape := false

	for _, r := range s {
		if escape {
			current.WriteRune(r)
			escape = false
			continue
		}

		if r == '\\' {
			escape = true
			current.WriteRune(r)
			continue
		}

		if r == delimiter {
			parts = append(parts, current.String())
			current.Reset()
			continue
		}

		current.WriteRune(r)
	}

	parts = append(parts, current.String())
	return parts
}

func unescape(s string) string {
	var result strings.Builder
	escape := false

	for i, r := range s {
		if escape {
			switch r {
			case '|':
				result.WriteRune('|')
			case ',':
				result.WriteRune(',')
			case '\\':
				result.WriteRune('\\')
			case 'n':
				result.WriteRune('\n')
			case 'r':
				result.WriteRune('\r')
			default:
				// Unknown escape, keep as written.
				result.WriteRune('\\')
				result.WriteRune(r)
			}
			escape = false
			continue
		}

		if r == '\\' && i < len(s)-1 {
			escape = true
			continue
		}

		result.WriteRune(r)
	}

	return result.String()
}

// Escape makes a field safe to embed in a packet line.
func Escape(s string) string {
	var result strings.Builder

	for _, r := range s {
		switch r {
		case '|':
			result.WriteString("\\|")
		case ',':
			result.WriteString("\\,")
		case '\\':
			result.WriteString("\\\\")
		case '\n':
			result.WriteString("\\n")
		case '\r':
			result.WriteString("\\r")
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}
