// Package merge combines cached rows, fetched pages and optimistic sends into
// one ordered, de-duplicated message list.
package merge

import (
	"slices"
	"strconv"

	"github.com/matheus3301/pmsync/internal/store"
)

// Key returns the dedup key of a message: its server id when assigned,
// otherwise a composite of timestamp, sender, receiver and text.
//
// Two distinct id-less messages with identical text sent in the same
// millisecond collide; the second is hidden until the server assigns ids.
func Key(m store.Message) string {
	if m.ID != 0 {
		return "id:" + strconv.FormatInt(m.ID, 10)
	}
	return "c:" + strconv.FormatInt(m.CreatedAt, 10) +
		"|" + strconv.FormatInt(m.SenderID, 10) +
		"|" + strconv.FormatInt(m.ReceiverID, 10) +
		"|" + m.Text
}

// Merge returns old followed by the entries of incoming whose key has not
// been seen, stable-sorted by CreatedAt ascending. An existing entry is never
// replaced by a later one with the same key. Neither input is modified.
func Merge(old, incoming []store.Message) []store.Message {
	out := make([]store.Message, 0, len(old)+len(incoming))
	seen := make(map[string]struct{}, len(old)+len(incoming))
	for _, list := range [][]store.Message{old, incoming} {
		for _, m := range list {
			k := Key(m)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b store.Message) int {
		switch {
		case a.CreatedAt < b.CreatedAt:
			return -1
		case a.CreatedAt > b.CreatedAt:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Confirm replaces the optimistic entry tagged clientID with the server's
// confirmed copy. The echo carries an id and the pending entry does not, so
// their keys differ and Merge alone would keep both. When no pending entry
// matches, confirmed is merged like any other message.
func Confirm(list []store.Message, clientID string, confirmed store.Message) []store.Message {
	out := make([]store.Message, 0, len(list)+1)
	for _, m := range list {
		if clientID != "" && m.Pending && m.ClientID == clientID {
			continue
		}
		out = append(out, m)
	}
	confirmed.Pending = false
	confirmed.ClientID = ""
	return Merge(out, []store.Message{confirmed})
}

// Pending returns the optimistic entries of list that are still unconfirmed.
func Pending(list []store.Message) []store.Message {
	var out []store.Message
	for _, m := range list {
		if m.Pending {
			out = append(out, m)
		}
	}
	return out
}
