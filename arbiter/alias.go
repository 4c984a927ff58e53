package arbiter

import (
	"strconv"
	"strings"
)

// aliasMap hides participant ids behind U1, U2, ... tokens for the duration
// of one arbitration call.
type aliasMap struct {
	next        int
	tokenToID   map[string]int64
	tokenToName map[string]string
	order       []string
	byID        map[int64]string
}

func newAliasMap() *aliasMap {
	return &aliasMap{
		next:        1,
		tokenToID:   map[string]int64{},
		tokenToName: map[string]string{},
		byID:        map[int64]string{},
	}
}

// token returns the alias for id, assigning the next one on first sight.
func (a *aliasMap) token(id int64, name string) string {
	if t, ok := a.byID[id]; ok {
		if a.tokenToName[t] == "" && name != "" {
			a.tokenToName[t] = name
		}
		return t
	}
	t := "U" + strconv.Itoa(a.next)
	a.next++
	a.tokenToID[t] = id
	a.tokenToName[t] = name
	a.byID[id] = t
	a.order = append(a.order, t)
	return t
}

// ids returns the aliased ids in first-appearance order.
func (a *aliasMap) ids() []int64 {
	out := make([]int64, 0, len(a.order))
	for _, t := range a.order {
		out = append(out, a.tokenToID[t])
	}
	return out
}

// has reports whether id is one of the aliased participants.
func (a *aliasMap) has(id int64) bool {
	_, ok := a.byID[id]
	return ok
}

// resolve maps a model-supplied identifier (alias token or numeric id) to an
// id. The returned id may still be outside the participant set.
func (a *aliasMap) resolve(v string) (int64, bool) {
	v = strings.Trim(strings.TrimSpace(v), "[]@<>")
	if v == "" {
		return 0, false
	}
	if id, ok := a.tokenToID[strings.ToUpper(v)]; ok {
		return id, true
	}
	if id, err := strconv.ParseInt(v, 10, 64); err == nil {
		return id, true
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && f == float64(int64(f)) {
		return int64(f), true
	}
	return 0, false
}

// legend renders the alias table transmitted as untrusted context.
func (a *aliasMap) legend() string {
	parts := make([]string, 0, len(a.order))
	for _, t := range a.order {
		name := a.tokenToName[t]
		if name == "" {
			name = "unknown"
		}
		parts = append(parts, t+" = "+strconv.FormatInt(a.tokenToID[t], 10)+" ("+name+")")
	}
	return strings.Join(parts, "; ")
}
