package oauth

import (
	"encoding/json"
	"strings"
)

// State carries the frontend paths to return to after the callback.
type State struct {
	OK  string `json:"ok"`
	Err string `json:"err"`
}

// EncodeState renders s as the opaque state parameter.
func EncodeState(s State) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// ParseState decodes raw. Malformed input never fails: a bare path is used
// for both outcomes, anything else falls back to "/". Err defaults to OK.
func ParseState(raw string) State {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return State{OK: "/", Err: "/"}
	}
	var s State
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		p := safePath(raw)
		return State{OK: p, Err: p}
	}
	s.OK = safePath(s.OK)
	if strings.TrimSpace(s.Err) == "" {
		s.Err = s.OK
	} else {
		s.Err = safePath(s.Err)
	}
	return s
}

// safePath accepts only site-relative paths; the result is appended to the
// frontend origin.
func safePath(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.ContainsAny(p, "\\\r\n") {
		return "/"
	}
	return p
}
