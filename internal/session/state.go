package session

import (
	"fmt"
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"quiz-rewards-api/internal/models"
)

// Payload layout, protobuf wire format:
//
//	1: bytes   user id (exactly 16 bytes)
//	2: message answers entry { 1: string quiz, 2: bytes packed bool varints }
//	3: message wheels entry  { 1: string wheel, 2: varint points }
//
// Map entries are written in key order so equal states encode to equal bytes.
const (
	fieldID      protowire.Number = 1
	fieldAnswers protowire.Number = 2
	fieldWheels  protowire.Number = 3

	fieldEntryKey   protowire.Number = 1
	fieldEntryValue protowire.Number = 2
)

func marshalState(state models.UserState) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldID, protowire.BytesType)
	b = protowire.AppendBytes(b, state.ID[:])

	for _, quiz := range sortedKeys(state.Answers) {
		var packed []byte
		for _, correct := range state.Answers[quiz] {
			packed = protowire.AppendVarint(packed, protowire.EncodeBool(correct))
		}

		var entry []byte
		entry = protowire.AppendTag(entry, fieldEntryKey, protowire.BytesType)
		entry = protowire.AppendString(entry, quiz)
		entry = protowire.AppendTag(entry, fieldEntryValue, protowire.BytesType)
		entry = protowire.AppendBytes(entry, packed)

		b = protowire.AppendTag(b, fieldAnswers, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}

	for _, wheel := range sortedKeys(state.Wheels) {
		var entry []byte
		entry = protowire.AppendTag(entry, fieldEntryKey, protowire.BytesType)
		entry = protowire.AppendString(entry, wheel)
		entry = protowire.AppendTag(entry, fieldEntryValue, protowire.VarintType)
		entry = protowire.AppendVarint(entry, uint64(state.Wheels[wheel]))

		b = protowire.AppendTag(b, fieldWheels, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}

	return b
}

func unmarshalState(b []byte) (models.UserState, error) {
	state := models.UserState{
		Answers: make(map[string][]bool),
		Wheels:  make(map[string]uint32),
	}
	seenID := false

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return models.UserState{}, corrupt(protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.BytesType {
			return models.UserState{}, corrupt(fmt.Errorf("field %d: unexpected wire type %d", num, typ))
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return models.UserState{}, corrupt(protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldID:
			if seenID {
				return models.UserState{}, corrupt(fmt.Errorf("duplicate id"))
			}
			if len(v) != models.UserIDSize {
				return models.UserState{}, corrupt(fmt.Errorf("id has %d bytes", len(v)))
			}
			copy(state.ID[:], v)
			seenID = true
		case fieldAnswers:
			quiz, answers, err := unmarshalAnswers(v)
			if err != nil {
				return models.UserState{}, corrupt(err)
			}
			if _, dup := state.Answers[quiz]; dup {
				return models.UserState{}, corrupt(fmt.Errorf("duplicate answers for %q", quiz))
			}
			state.Answers[quiz] = answers
		case fieldWheels:
			wheel, points, err := unmarshalWheel(v)
			if err != nil {
				return models.UserState{}, corrupt(err)
			}
			if _, dup := state.Wheels[wheel]; dup {
				return models.UserState{}, corrupt(fmt.Errorf("duplicate wheel %q", wheel))
			}
			state.Wheels[wheel] = points
		default:
			return models.UserState{}, corrupt(fmt.Errorf("unknown field %d", num))
		}
	}

	if !seenID {
		return models.UserState{}, corrupt(fmt.Errorf("missing id"))
	}
	return state, nil
}

func unmarshalAnswers(b []byte) (string, []bool, error) {
	var (
		quiz           string
		packed         []byte
		seenKey, seenV bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", nil, protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType {
			return "", nil, fmt.Errorf("answers field %d: unexpected wire type %d", num, typ)
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return "", nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldEntryKey && !seenKey:
			quiz, seenKey = string(v), true
		case num == fieldEntryValue && !seenV:
			packed, seenV = v, true
		default:
			return "", nil, fmt.Errorf("unexpected answers field %d", num)
		}
	}
	if !seenKey || !seenV {
		return "", nil, fmt.Errorf("incomplete answers entry")
	}

	answers := make([]bool, 0, len(packed))
	for len(packed) > 0 {
		v, n := protowire.ConsumeVarint(packed)
		if n < 0 {
			return "", nil, protowire.ParseError(n)
		}
		if v > 1 {
			return "", nil, fmt.Errorf("answer value %d is not a bool", v)
		}
		answers = append(answers, protowire.DecodeBool(v))
		packed = packed[n:]
	}
	return quiz, answers, nil
}

func unmarshalWheel(b []byte) (string, uint32, error) {
	var (
		wheel          string
		points         uint64
		seenKey, seenV bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", 0, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldEntryKey && typ == protowire.BytesType && !seenKey:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", 0, protowire.ParseError(n)
			}
			wheel, seenKey = string(v), true
			b = b[n:]
		case num == fieldEntryValue && typ == protowire.VarintType && !seenV:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return "", 0, protowire.ParseError(n)
			}
			if v > math.MaxUint32 {
				return "", 0, fmt.Errorf("wheel points %d overflow", v)
			}
			points, seenV = v, true
			b = b[n:]
		default:
			return "", 0, fmt.Errorf("unexpected wheel field %d (type %d)", num, typ)
		}
	}
	if !seenKey || !seenV {
		return "", 0, fmt.Errorf("incomplete wheel entry")
	}
	return wheel, uint32(points), nil
}

func corrupt(err error) error {
	return fmt.Errorf("%w: %v", ErrCorrupt, err)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
