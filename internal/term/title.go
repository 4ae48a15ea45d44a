package term

import "strings"

// parseOSCTitle extracts the last window-title set sequence (OSC 0 or OSC 2,
// terminated by BEL or ST) from a chunk of terminal output. Returns "" when
// the chunk contains no complete title sequence.
func parseOSCTitle(chunk []byte) string {
	s := string(chunk)
	title := ""
	for {
		i := strings.Index(s, "\x1b]")
		if i < 0 {
			break
		}
		s = s[i+2:]

		var body string
		if strings.HasPrefix(s, "0;") || strings.HasPrefix(s, "2;") {
			body = s[2:]
		} else {
			continue
		}

		end := strings.IndexAny(body, "\x07\x1b")
		if end < 0 {
			break // sequence split across chunks; ignore
		}
		if body[end] == '\x1b' {
			// ST terminator is ESC backslash; a lone ESC starts a new sequence.
			if end+1 >= len(body) || body[end+1] != '\\' {
				s = body[end:]
				continue
			}
		}
		title = body[:end]
		s = body[end:]
	}
	return sanitizeTitle(title)
}

// sanitizeTitle strips control characters and caps the length of a title
// asserted by the PTY or the client.
func sanitizeTitle(title string) string {
	clean := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, title)
	clean = strings.TrimSpace(clean)
	if len(clean) > 128 {
		clean = clean[:128]
	}
	return clean
}
