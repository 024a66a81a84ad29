package kv

// Key families. Index keys separate their two id parts with 0x00.
const (
	prefixNode     = byte(0x01) // node:<id> -> Node JSON
	prefixEdge     = byte(0x02) // edge:<id> -> Edge JSON
	prefixLabel    = byte(0x03) // label:<label>\x00<nodeID> -> empty
	prefixOutgoing = byte(0x04) // out:<from>\x00<edgeID> -> empty
	prefixIncoming = byte(0x05) // in:<to>\x00<edgeID> -> empty
)

func nodeKey(id string) []byte {
	return append([]byte{prefixNode}, id...)
}

func edgeKey(id string) []byte {
	return append([]byte{prefixEdge}, id...)
}

func indexKey(prefix byte, owner, id string) []byte {
	key := make([]byte, 0, len(owner)+len(id)+2)
	key = append(key, prefix)
	key = append(key, owner...)
	key = append(key, 0x00)

	return append(key, id...)
}

func indexPrefix(prefix byte, owner string) []byte {
	key := make([]byte, 0, len(owner)+2)
	key = append(key, prefix)
	key = append(key, owner...)

	return append(key, 0x00)
}

func labelKey(label, nodeID string) []byte { return indexKey(prefixLabel, label, nodeID) }
func outgoingKey(from, edgeID string) []byte { return indexKey(prefixOutgoing, from, edgeID) }
func incomingKey(to, edgeID string) []byte { return indexKey(prefixIncoming, to, edgeID) }
func labelPrefix(label string) []byte { return indexPrefix(prefixLabel, label) }
func outgoingPrefix(nodeID string) []byte { return indexPrefix(prefixOutgoing, nodeID) }
func incomingPrefix(nodeID string) []byte { return indexPrefix(prefixIncoming, nodeID) }

// idFromIndexKey returns the part of an index key after the owner prefix.
func idFromIndexKey(key []byte, prefixLen int) string {
	if prefixLen >= len(key) {
		return ""
	}

	return string(key[prefixLen:])
}
