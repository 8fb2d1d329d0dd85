package classroom

import "strings"

// Collection names a backend table mirrored by the store.
type Collection string

const (
	CollectionProfiles      Collection = "profiles"
	CollectionUnits         Collection = "units"
	CollectionRounds        Collection = "rounds"
	CollectionWords         Collection = "words"
	CollectionRoundProgress Collection = "round_progress"
	CollectionUnitTests     Collection = "unit_tests"
	CollectionChatGroups    Collection = "chat_groups"
	CollectionChatMessages  Collection = "chat_messages"
)

var knownCollections = map[Collection]bool{
	CollectionProfiles:      true,
	CollectionUnits:         true,
	CollectionRounds:        true,
	CollectionWords:         true,
	CollectionRoundProgress: true,
	CollectionUnitTests:     true,
	CollectionChatGroups:    true,
	CollectionChatMessages:  true,
}

// ParseCollection accepts bare or schema-qualified table names ("public.units").
func ParseCollection(table string) (Collection, bool) {
	table = strings.ToLower(strings.TrimSpace(table))
	if i := strings.LastIndexByte(table, '.'); i >= 0 {
		table = table[i+1:]
	}
	c := Collection(table)
	return c, knownCollections[c]
}

// Critical reports whether a failed load of the collection must fail the
// whole snapshot. Chat is allowed to come up empty.
func (c Collection) Critical() bool {
	switch c {
	case CollectionChatGroups, CollectionChatMessages:
		return false
	default:
		return true
	}
}
