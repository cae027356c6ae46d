package models

import "strings"

type EnumKind int

const (
	EnumStatus EnumKind = iota
	EnumPriority
)

func (k EnumKind) String() string {
	switch k {
	case EnumStatus:
		return "status"
	case EnumPriority:
		return "priority"
	default:
		return "unknown"
	}
}

// enumTable maps canonical values to their dense ordinal. List order is the
// sort order persisted in the *_value columns.
type enumTable struct {
	values []string
	lookup map[string]int
}

func newEnumTable(values ...string) enumTable {
	lookup := make(map[string]int, len(values))
	for i, v := range values {
		lookup[enumKey(v)] = i
	}
	return enumTable{values: values, lookup: lookup}
}

func (t enumTable) parse(raw string) (int, bool) {
	i, ok := t.lookup[enumKey(raw)]
	return i, ok
}

func (t enumTable) name(i int) string {
	if i < 0 || i >= len(t.values) {
		return ""
	}
	return t.values[i]
}

func enumKey(raw string) string {
	key := strings.ToUpper(strings.TrimSpace(raw))
	return strings.NewReplacer("-", "_", " ", "_").Replace(key)
}

var (
	statusTable   = newEnumTable("pending", "in-progress", "completed")
	priorityTable = newEnumTable("low", "medium", "high")
)

type TaskStatus int

const (
	StatusPending TaskStatus = iota
	StatusInProgress
	StatusCompleted
)

func ParseStatus(raw string) (TaskStatus, bool) {
	i, ok := statusTable.parse(raw)
	return TaskStatus(i), ok
}

func (s TaskStatus) String() string { return statusTable.name(int(s)) }

func (s TaskStatus) Ordinal() int { return int(s) }

type TaskPriority int

const (
	PriorityLow TaskPriority = iota
	PriorityMedium
	PriorityHigh
)

func ParsePriority(raw string) (TaskPriority, bool) {
	i, ok := priorityTable.parse(raw)
	return TaskPriority(i), ok
}

func (p TaskPriority) String() string { return priorityTable.name(int(p)) }

func (p TaskPriority) Ordinal() int { return int(p) }

// Normalize maps any case or separator variant of an enum value to its
// canonical spelling. Unknown input reports false; callers decide what that
// means for them.
func Normalize(raw string, kind EnumKind) (string, bool) {
	switch kind {
	case EnumStatus:
		if s, ok := ParseStatus(raw); ok {
			return s.String(), true
		}
	case EnumPriority:
		if p, ok := ParsePriority(raw); ok {
			return p.String(), true
		}
	}
	return "", false
}

func Ordinal(raw string, kind EnumKind) (int, bool) {
	switch kind {
	case EnumStatus:
		return statusTable.parse(raw)
	case EnumPriority:
		return priorityTable.parse(raw)
	}
	return 0, false
}

func StatusValues() []string {
	return append([]string(nil), statusTable.values...)
}

func PriorityValues() []string {
	return append([]string(nil), priorityTable.values...)
}
