package vcontrold

import (
	"strconv"
	"strings"
	"unicode"
)

// Constants of the vcontrold text protocol.
const (
	// Prompt is printed by the daemon whenever it is ready for a command.
	Prompt = "vctrld>"

	// LineTerminator ends every command line sent to the daemon.
	LineTerminator = "\n"

	// DefaultPort is the port vcontrold listens on.
	DefaultPort = 3002

	// MaxReplyLen bounds a single reply. Timer tables are the largest
	// replies the daemon produces and stay well below this.
	MaxReplyLen = 16 * 1024

	quitCommand     = "quit"
	identifyCommand = "getDevType"
	timeoutDetail   = "timeout"
	emptyDetail     = "empty response"
)

// Status tells whether the daemon answered a command successfully.
type Status uint8

const (
	StatusOK Status = iota
	StatusError
)

func (s Status) String() string {
	if s == StatusOK {
		return "ok"
	}
	return "error"
}

// Response is the decoded reply to one command.
type Response struct {
	Status      Status
	Tokens      []string
	ErrorDetail string
}

// Value parses the first token.
func (r *Response) Value() any {
	if len(r.Tokens) == 0 {
		return nil
	}
	return ParseToken(r.Tokens[0])
}

// Values parses every token.
func (r *Response) Values() []any {
	out := make([]any, len(r.Tokens))
	for i, t := range r.Tokens {
		out[i] = ParseToken(t)
	}
	return out
}

// Text joins the tokens with single spaces.
func (r *Response) Text() string { return strings.Join(r.Tokens, " ") }

// ErrorMarkers are substrings that identify a failure reply.
type ErrorMarkers []string

// DefaultErrorMarkers covers the failure replies vcontrold is known to send.
var DefaultErrorMarkers = ErrorMarkers{
	"ERR",
	"NOT OK",
	"command unknown",
	"Wrong result",
}

// Match returns the marker contained in s, if any.
func (m ErrorMarkers) Match(s string) (string, bool) {
	for _, marker := range m {
		if marker != "" && strings.Contains(s, marker) {
			return marker, true
		}
	}
	return "", false
}

// Decode splits a raw reply into tokens. Timer tables are split into lines,
// everything else on whitespace. A reply without tokens is an error.
func Decode(raw []byte, unit Unit, markers ErrorMarkers) *Response {
	text := strings.TrimSpace(strings.TrimSuffix(strings.TrimRightFunc(string(raw), unicode.IsSpace), Prompt))

	if _, failed := markers.Match(text); failed {
		detail := strings.TrimSpace(strings.TrimPrefix(text, "ERR:"))
		return &Response{Status: StatusError, ErrorDetail: detail}
	}

	var tokens []string
	if unit == UnitTimer {
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				tokens = append(tokens, line)
			}
		}
	} else {
		tokens = strings.Fields(text)
	}

	if len(tokens) == 0 {
		return &Response{Status: StatusError, ErrorDetail: emptyDetail}
	}
	return &Response{Status: StatusOK, Tokens: tokens}
}

// ParseToken converts a token to int64 or float64 when it is numeric and
// returns it unchanged otherwise.
func ParseToken(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

// toFloat widens a parsed numeric token.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
