package spanz

import "strings"

// maxTraceStateMembers is the W3C limit on tracestate list members.
const maxTraceStateMembers = 32

// TraceState is an ordered W3C tracestate list. The zero value is empty.
// TraceState values are immutable; With and Without return new lists.
type TraceState struct {
	members []traceStateMember
}

type traceStateMember struct {
	key   string
	value string
}

// ParseTraceState parses a tracestate header. Malformed and duplicate
// members are skipped.
func ParseTraceState(header string) TraceState {
	var ts TraceState
	for _, item := range strings.Split(header, ",") {
		item = strings.Trim(item, " \t")
		if item == "" {
			continue
		}
		key, value, ok := strings.Cut(item, "=")
		if !ok || key == "" || value == "" {
			continue
		}
		if _, dup := ts.Get(key); dup {
			continue
		}
		ts.members = append(ts.members, traceStateMember{key: key, value: value})
		if len(ts.members) == maxTraceStateMembers {
			break
		}
	}
	return ts
}

// Get returns the value of a member.
func (ts TraceState) Get(key string) (string, bool) {
	for _, m := range ts.members {
		if m.key == key {
			return m.value, true
		}
	}
	return "", false
}

// With returns a list with key set to value as its first member.
func (ts TraceState) With(key, value string) TraceState {
	members := make([]traceStateMember, 0, len(ts.members)+1)
	members = append(members, traceStateMember{key: key, value: value})
	for _, m := range ts.members {
		if m.key != key && len(members) < maxTraceStateMembers {
			members = append(members, m)
		}
	}
	return TraceState{members: members}
}

// Without returns a list without key.
func (ts TraceState) Without(key string) TraceState {
	members := make([]traceStateMember, 0, len(ts.members))
	for _, m := range ts.members {
		if m.key != key {
			members = append(members, m)
		}
	}
	return TraceState{members: members}
}

// Len returns the number of members.
func (ts TraceState) Len() int {
	return len(ts.members)
}

// String returns the header form.
func (ts TraceState) String() string {
	var b strings.Builder
	for i, m := range ts.members {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(m.key)
		b.WriteByte('=')
		b.WriteString(m.value)
	}
	return b.String()
}
