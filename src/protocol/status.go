package protocol

import (
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

// KeyValue is one entry of a status announcement.
type KeyValue struct {
	Key   string
	Value rlp.RawValue
}

// StatusList is the key/value list a protocol announces during the handshake.
// Unknown keys are ignored by the receiver.
type StatusList []KeyValue

// Add appends key with the RLP encoding of val. A nil val encodes as zero.
func (l StatusList) Add(key string, val interface{}) (StatusList, error) {
	if val == nil {
		val = uint64(0)
	}
	enc, err := rlp.EncodeToBytes(val)
	if err != nil {
		return l, errors.Wrapf(err, "encoding status key %s", key)
	}
	return append(l, KeyValue{Key: key, Value: enc}), nil
}

// Map indexes the list by key. Later duplicates win.
func (l StatusList) Map() StatusMap {
	m := make(StatusMap, len(l))
	for _, kv := range l {
		m[kv.Key] = kv.Value
	}
	return m
}

// StatusMap is the decoded form of a StatusList.
type StatusMap map[string]rlp.RawValue

// Has reports whether key is present.
func (m StatusMap) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Get decodes the value of a mandatory key into val.
func (m StatusMap) Get(key string, val interface{}) error {
	enc, ok := m[key]
	if !ok {
		return errors.Errorf("missing status key %s", key)
	}
	if err := rlp.DecodeBytes(enc, val); err != nil {
		return errors.Wrapf(err, "status key %s", key)
	}
	return nil
}

// GetOptional decodes the value of key into val if it is present.
func (m StatusMap) GetOptional(key string, val interface{}) (bool, error) {
	if !m.Has(key) {
		return false, nil
	}
	return true, m.Get(key, val)
}

// statusEnvelope is the payload of the status frame: the versions the sender
// supports followed by its status list.
type statusEnvelope struct {
	Versions []uint
	Status   StatusList
}
