package arbiter

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

var errNoObject = errors.New("no json object in completion")

// modelRuling is the parsed completion. Absent or unusable fields are left
// empty rather than guessed.
type modelRuling struct {
	UserID    string
	HasUserID bool
	Reason    string
}

// parseRuling extracts the substring between the first '{' and the last '}'
// and decodes it as {"user_id": ..., "reason": ...}. user_id may be a string
// (alias or digits) or a number.
func parseRuling(content string) (modelRuling, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return modelRuling{}, errNoObject
	}
	var raw struct {
		UserID json.RawMessage `json:"user_id"`
		Reason json.RawMessage `json:"reason"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return modelRuling{}, err
	}

	var out modelRuling
	if id := bytes.TrimSpace(raw.UserID); len(id) > 0 && !bytes.Equal(id, []byte("null")) {
		var s string
		if id[0] == '"' {
			if err := json.Unmarshal(id, &s); err == nil {
				out.UserID, out.HasUserID = s, true
			}
		} else {
			var n json.Number
			if err := json.Unmarshal(id, &n); err == nil {
				out.UserID, out.HasUserID = n.String(), true
			}
		}
	}
	var reason string
	if err := json.Unmarshal(raw.Reason, &reason); err == nil {
		out.Reason = strings.TrimSpace(reason)
	}
	return out, nil
}
