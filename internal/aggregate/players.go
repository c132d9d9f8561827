package aggregate

import (
	"iter"
	"strings"
)

// PlayerIndex maps ucid to display name. players.json is treated as an
// append-only changelog: the last line for a ucid wins, and a name lookup
// resolves to the ucid of the last line carrying that name.
type PlayerIndex struct {
	names  map[string]string
	byName map[string][]string // lower-cased name -> ucids, most recent last
}

// BuildPlayerIndex folds player records into an index.
func BuildPlayerIndex(records iter.Seq[PlayerRecord]) *PlayerIndex {
	idx := &PlayerIndex{
		names:  make(map[string]string),
		byName: make(map[string][]string),
	}
	for rec := range records {
		ucid := strings.TrimSpace(rec.UCID)
		if ucid == "" {
			continue
		}
		idx.names[ucid] = rec.Name
		if key := nameKey(rec.Name); key != "" {
			idx.byName[key] = appendMostRecent(idx.byName[key], ucid)
		}
	}
	return idx
}

// Name returns the display name for ucid, falling back to the ucid itself.
func (idx *PlayerIndex) Name(ucid string) string {
	if idx != nil {
		if name, ok := idx.names[ucid]; ok && name != "" {
			return name
		}
	}
	return ucid
}

// Lookup resolves a display name (case-insensitive) to a ucid. A renamed
// player is only found under their current name.
func (idx *PlayerIndex) Lookup(name string) (string, bool) {
	if idx == nil {
		return "", false
	}
	key := nameKey(name)
	if key == "" {
		return "", false
	}
	ucids := idx.byName[key]
	for i := len(ucids) - 1; i >= 0; i-- {
		if nameKey(idx.names[ucids[i]]) == key {
			return ucids[i], true
		}
	}
	return "", false
}

// Len returns the number of distinct ucids.
func (idx *PlayerIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.names)
}

func appendMostRecent(ucids []string, ucid string) []string {
	for i, u := range ucids {
		if u == ucid {
			ucids = append(ucids[:i], ucids[i+1:]...)
			break
		}
	}
	return append(ucids, ucid)
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
