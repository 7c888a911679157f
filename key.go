package quartz

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultGroup is the group assigned to keys created without one.
const DefaultGroup = "DEFAULT"

// Key identifies a job or a trigger by name within a group.
type Key struct {
	Name  string
	Group string
}

// JobKey identifies a JobDetail.
type JobKey = Key

// TriggerKey identifies a Trigger.
type TriggerKey = Key

// NewKey returns a key in the given group, or in DefaultGroup when group is empty.
func NewKey(name, group string) Key {
	if group == "" {
		group = DefaultGroup
	}
	return Key{Name: name, Group: group}
}

// NewJobKey returns a JobKey; an empty group selects DefaultGroup.
func NewJobKey(name, group string) JobKey { return NewKey(name, group) }

// NewTriggerKey returns a TriggerKey; an empty group selects DefaultGroup.
func NewTriggerKey(name, group string) TriggerKey { return NewKey(name, group) }

// generateName returns a unique, time-ordered name for keys built without one.
func generateName() string {
	return uuid.Must(uuid.NewV7()).String()
}

// String renders the key as "group.name".
func (k Key) String() string {
	return k.Group + "." + k.Name
}

// IsZero reports whether the key has neither name nor group.
func (k Key) IsZero() bool {
	return k.Name == "" && k.Group == ""
}

// Compare orders keys by group, then by name.
func (k Key) Compare(o Key) int {
	if c := strings.Compare(k.Group, o.Group); c != 0 {
		return c
	}
	return strings.Compare(k.Name, o.Name)
}

// MatchOperator is the comparison a GroupMatcher applies to group names.
type MatchOperator int

const (
	MatchEquals MatchOperator = iota
	MatchStartsWith
	MatchEndsWith
	MatchContains
	MatchAnything
)

// String returns the operator name.
func (op MatchOperator) String() string {
	switch op {
	case MatchEquals:
		return "EQUALS"
	case MatchStartsWith:
		return "STARTS_WITH"
	case MatchEndsWith:
		return "ENDS_WITH"
	case MatchContains:
		return "CONTAINS"
	case MatchAnything:
		return "ANYTHING"
	default:
		return "UNKNOWN"
	}
}

func (op MatchOperator) evaluate(value, compareTo string) bool {
	switch op {
	case MatchEquals:
		return value == compareTo
	case MatchStartsWith:
		return strings.HasPrefix(value, compareTo)
	case MatchEndsWith:
		return strings.HasSuffix(value, compareTo)
	case MatchContains:
		return strings.Contains(value, compareTo)
	case MatchAnything:
		return true
	default:
		return false
	}
}

// GroupMatcher selects keys by group name.
type GroupMatcher struct {
	Operator  MatchOperator
	CompareTo string
}

// GroupEquals matches exactly one group.
func GroupEquals(group string) GroupMatcher {
	return GroupMatcher{Operator: MatchEquals, CompareTo: group}
}

// GroupStartsWith matches groups with the given prefix.
func GroupStartsWith(prefix string) GroupMatcher {
	return GroupMatcher{Operator: MatchStartsWith, CompareTo: prefix}
}

// GroupEndsWith matches groups with the given suffix.
func GroupEndsWith(suffix string) GroupMatcher {
	return GroupMatcher{Operator: MatchEndsWith, CompareTo: suffix}
}

// GroupContains matches groups containing the given substring.
func GroupContains(s string) GroupMatcher {
	return GroupMatcher{Operator: MatchContains, CompareTo: s}
}

// AnyGroup matches every group.
func AnyGroup() GroupMatcher {
	return GroupMatcher{Operator: MatchAnything}
}

// MatchesGroup reports whether group is selected by the matcher.
func (m GroupMatcher) MatchesGroup(group string) bool {
	return m.Operator.evaluate(group, m.CompareTo)
}

// Matches reports whether the key's group is selected by the matcher.
func (m GroupMatcher) Matches(k Key) bool {
	return m.MatchesGroup(k.Group)
}
