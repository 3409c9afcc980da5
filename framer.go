package indiserver

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/rickbassham/logging"
)

// recognizedTags is the closed set of top-level INDI elements this
// framer accepts. The factory returns a fresh pointer to decode into.
var recognizedTags = map[string]func() interface{}{
	"getProperties":   func() interface{} { return &GetProperties{} },
	"enableBLOB":      func() interface{} { return &EnableBLOB{} },
	"newSwitchVector": func() interface{} { return &NewSwitchVector{} },
	"newNumberVector": func() interface{} { return &NewNumberVector{} },
	"newTextVector":   func() interface{} { return &NewTextVector{} },
	"newBLOBVector":   func() interface{} { return &NewBLOBVector{} },
	"defSwitchVector": func() interface{} { return &DefSwitchVector{} },
	"defLightVector":  func() interface{} { return &DefLightVector{} },
	"defTextVector":   func() interface{} { return &DefTextVector{} },
	"defNumberVector": func() interface{} { return &DefNumberVector{} },
	"defBLOBVector":   func() interface{} { return &DefBLOBVector{} },
	"setSwitchVector": func() interface{} { return &SetSwitchVector{} },
	"setLightVector":  func() interface{} { return &SetLightVector{} },
	"setTextVector":   func() interface{} { return &SetTextVector{} },
	"setNumberVector": func() interface{} { return &SetNumberVector{} },
	"setBLOBVector":   func() interface{} { return &SetBLOBVector{} },
	"message":         func() interface{} { return &Message{} },
	"delProperty":     func() interface{} { return &DelProperty{} },
}

const maxTagPeek = 20

// Framer is a streaming splitter that emits well-formed top-level INDI
// elements from a byte stream. It tolerates noise between elements and
// accepts either whole or chunked delivery of large BLOB payloads,
// because it operates on the decoded element text rather than on network
// read boundaries. A Framer only reads; outbound elements are encoded by
// writeElement.
//
// A Framer is restartable per connection: construct a fresh one for each
// new connection, no state leaks across reconnections.
type Framer struct {
	r   *bufio.Reader
	log logging.Logger
}

// NewFramer wraps src for element-at-a-time parsing.
func NewFramer(src io.Reader, log logging.Logger) *Framer {
	return &Framer{r: bufio.NewReaderSize(src, 4096), log: log}
}

// Next blocks until it can return the next well-formed top-level element,
// or an error if src is exhausted or broken. Garbage between elements and
// elements that fail to parse are silently discarded and scanning
// resumes; only an I/O error from src is returned.
func (f *Framer) Next() (interface{}, error) {
	for {
		tag, err := f.scanToStartTag()
		if err != nil {
			return nil, err
		}

		rest, selfClose, err := f.readTagClose()
		if err != nil {
			return nil, err
		}

		full := "<" + tag + rest
		if !selfClose {
			body, err := f.readUntilClosingTag(tag)
			if err != nil {
				return nil, err
			}
			full += body
		}

		ev, perr := decodeElement(tag, full)
		if perr != nil {
			if f.log != nil {
				f.log.WithField("tag", tag).WithError(perr).Warn("discarding malformed element")
			}
			continue
		}
		return ev, nil
	}
}

func isNameByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// scanToStartTag discards bytes until it finds a '<' immediately followed
// by a recognized tag name, then consumes "<tagname" and returns the name.
func (f *Framer) scanToStartTag() (string, error) {
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			return "", err
		}
		if b != '<' {
			continue
		}

		peek, _ := f.r.Peek(maxTagPeek)
		nameLen := 0
		for nameLen < len(peek) && isNameByte(peek[nameLen]) {
			nameLen++
		}
		name := string(peek[:nameLen])

		if _, ok := recognizedTags[name]; !ok {
			continue
		}

		if _, err := f.r.Discard(nameLen); err != nil {
			return "", err
		}
		return name, nil
	}
}

// readTagClose reads from just after "<tagname" through the terminating
// '>' of the opening tag, respecting quoted attribute values so a '>'
// inside an attribute string doesn't terminate the tag early. It reports
// whether the tag self-closed ("... />"). A '<' inside a quoted value
// marks the quote as unterminated: the tag is cut off there (reported as
// self-closed so it is decoded, and rejected, at once) and the '<' is
// left in the stream for the next scan.
func (f *Framer) readTagClose() (rest string, selfClose bool, err error) {
	var buf bytes.Buffer
	var inQuote byte
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			return "", false, err
		}
		buf.WriteByte(b)

		if inQuote != 0 {
			if b == inQuote {
				inQuote = 0
			} else if b == '<' {
				_ = f.r.UnreadByte()
				s := buf.String()
				return s[:len(s)-1], true, nil
			}
			continue
		}
		switch b {
		case '\'', '"':
			inQuote = b
		case '>':
			s := buf.String()
			selfClose = strings.HasSuffix(strings.TrimRight(s[:len(s)-1], " \t\r\n"), "/")
			return s, selfClose, nil
		}
	}
}

// readUntilClosingTag accumulates bytes until the literal closing tag
// "</tagname>" appears, then returns everything read including the close
// tag itself. INDI top-level elements never nest an element of their own
// tag name, so a literal substring match is sufficient.
func (f *Framer) readUntilClosingTag(tag string) (string, error) {
	closeTag := "</" + tag + ">"
	var buf bytes.Buffer
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			return "", err
		}
		buf.WriteByte(b)
		if buf.Len() >= len(closeTag) {
			tail := buf.Bytes()[buf.Len()-len(closeTag):]
			if string(tail) == closeTag {
				return buf.String(), nil
			}
		}
	}
}

// writeElement encodes ev (one of the wire struct pointers from
// xmlmodels.go) and writes it to w, terminated by a newline so
// line-oriented logging/debugging tools can tell elements apart. Used by
// every owner that speaks the wire protocol outward: external.go over a
// child's stdin, remote.go over a TCP connection, clientslot.go over the
// client socket.
func writeElement(w io.Writer, ev interface{}) error {
	b, err := xml.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n"))
	return err
}

func decodeElement(tag, full string) (interface{}, error) {
	factory, ok := recognizedTags[tag]
	if !ok {
		return nil, newParseError(tag, "unrecognized element", nil)
	}
	target := factory()
	if err := xml.Unmarshal([]byte(full), target); err != nil {
		return nil, newParseError(tag, "malformed xml", err)
	}
	return target, nil
}
