package cache

import "strings"

// Kind tags a resource key so fetch and invalidation logic can switch
// exhaustively instead of inspecting string arrays.
type Kind string

const (
	KindEvent         Kind = "event"
	KindActivity      Kind = "activity"
	KindUserActivity  Kind = "user-activity"
	KindGroupActivity Kind = "group-activity"
)

type Key struct {
	Kind Kind
	IDs  []string
}

func (k Key) String() string {
	parts := append([]string{string(k.Kind)}, k.IDs...)
	return strings.Join(parts, "/")
}

func EventKey(id string) Key    { return Key{Kind: KindEvent, IDs: []string{id}} }
func ActivityKey(id string) Key { return Key{Kind: KindActivity, IDs: []string{id}} }

func UserActivityKey(activityID, userID string) Key {
	return Key{Kind: KindUserActivity, IDs: []string{activityID, userID}}
}

func GroupActivityKey(activityID string) Key {
	return Key{Kind: KindGroupActivity, IDs: []string{activityID}}
}
