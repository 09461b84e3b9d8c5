package wire

import (
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// This codec speaks the protobuf binary wire format (tag/varint/
// length-delimited encoding per google.golang.org/protobuf/encoding/protowire)
// without a .proto/protoc step: every message type here is a hand-written
// Go struct with its field numbers fixed in messages.go, and Marshal/
// Unmarshal below apply exactly the encoding a generated proto.Message
// would, by hand. A connect-go Codec backed by this gives Connect clients
// and servers (including ones generated from a real .proto later) a
// wire-compatible surface.

// sortedMetadataKeys returns a map's keys in a fixed order so that
// Marshal is deterministic — required for fingerprinting (idempotency) and
// handy for tests asserting on encoded bytes.
func sortedMetadataKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendMessageField(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func marshalStringMapEntry(key, value string) []byte {
	var b []byte
	b = appendStringField(b, 1, key)
	b = appendStringField(b, 2, value)
	return b
}

func unmarshalStringMapEntry(data []byte) (string, string, error) {
	var key, value string
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return "", "", protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return "", "", protowire.ParseError(n)
			}
			key = v
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return "", "", protowire.ParseError(n)
			}
			value = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return "", "", protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return key, value, nil
}

// --- EventData ---

func marshalEventData(e EventData) []byte {
	var b []byte
	b = appendStringField(b, 1, e.EventType)
	b = appendStringField(b, 2, e.EventID)
	b = appendBytesField(b, 3, e.Data)
	for _, k := range sortedMetadataKeys(e.Metadata) {
		b = appendMessageField(b, 4, marshalStringMapEntry(k, e.Metadata[k]))
	}
	b = appendVarintField(b, 5, e.AggregateNonce)
	b = appendVarintField(b, 6, e.GlobalNonce)
	b = appendVarintField(b, 7, uint64(e.RecordedAtUnixMilli))
	return b
}

func unmarshalEventData(data []byte) (EventData, error) {
	var e EventData
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return e, protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.EventType = v
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.EventID = v
			data = data[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.Data = append([]byte(nil), v...)
			data = data[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			k, val, err := unmarshalStringMapEntry(v)
			if err != nil {
				return e, err
			}
			if e.Metadata == nil {
				e.Metadata = make(map[string]string)
			}
			e.Metadata[k] = val
			data = data[n:]
		case num == 5 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.AggregateNonce = v
			data = data[n:]
		case num == 6 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.GlobalNonce = v
			data = data[n:]
		case num == 7 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.RecordedAtUnixMilli = int64(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return e, nil
}

// --- AppendRequest ---

func (m *AppendRequest) Marshal() ([]byte, error) {
	var b []byte
	b = appendStringField(b, 1, m.TenantID)
	b = appendStringField(b, 2, m.AggregateID)
	b = appendStringField(b, 3, m.AggregateType)
	b = appendVarintField(b, 4, m.ExpectedAggregateNonce)
	b = appendStringField(b, 5, m.IdempotencyKey)
	for _, ev := range m.Events {
		b = appendMessageField(b, 6, marshalEventData(ev))
	}
	return b, nil
}

func (m *AppendRequest) Unmarshal(data []byte) error {
	*m = AppendRequest{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.TenantID = v
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.AggregateID = v
			data = data[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.AggregateType = v
			data = data[n:]
		case num == 4 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.ExpectedAggregateNonce = v
			data = data[n:]
		case num == 5 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.IdempotencyKey = v
			data = data[n:]
		case num == 6 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			ev, err := unmarshalEventData(v)
			if err != nil {
				return err
			}
			m.Events = append(m.Events, ev)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

// --- AppendResponse ---

func (m *AppendResponse) Marshal() ([]byte, error) {
	var b []byte
	b = appendVarintField(b, 1, m.LastAggregateNonce)
	b = appendVarintField(b, 2, m.GlobalNonce)
	return b, nil
}

func (m *AppendResponse) Unmarshal(data []byte) error {
	*m = AppendResponse{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.LastAggregateNonce = v
			data = data[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.GlobalNonce = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

// --- ConcurrencyErrorDetail ---

func (m *ConcurrencyErrorDetail) Marshal() ([]byte, error) {
	var b []byte
	b = appendStringField(b, 1, m.TenantID)
	b = appendStringField(b, 2, m.AggregateID)
	b = appendVarintField(b, 3, m.ExpectedNonce)
	b = appendVarintField(b, 4, m.ActualLastAggregateNonce)
	b = appendVarintField(b, 5, m.ActualLastGlobalNonce)
	return b, nil
}

func (m *ConcurrencyErrorDetail) Unmarshal(data []byte) error {
	*m = ConcurrencyErrorDetail{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.TenantID = v
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.AggregateID = v
			data = data[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.ExpectedNonce = v
			data = data[n:]
		case num == 4 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.ActualLastAggregateNonce = v
			data = data[n:]
		case num == 5 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.ActualLastGlobalNonce = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

// --- ReadStreamRequest ---

func (m *ReadStreamRequest) Marshal() ([]byte, error) {
	var b []byte
	b = appendStringField(b, 1, m.TenantID)
	b = appendStringField(b, 2, m.AggregateID)
	b = appendVarintField(b, 3, uint64(m.Direction))
	b = appendVarintField(b, 4, m.FromNonce)
	b = appendVarintField(b, 5, uint64(m.Limit))
	return b, nil
}

func (m *ReadStreamRequest) Unmarshal(data []byte) error {
	*m = ReadStreamRequest{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.TenantID = v
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.AggregateID = v
			data = data[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Direction = int32(v)
			data = data[n:]
		case num == 4 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.FromNonce = v
			data = data[n:]
		case num == 5 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Limit = uint32(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

// --- ReadStreamResponse ---

func (m *ReadStreamResponse) Marshal() ([]byte, error) {
	var b []byte
	for _, ev := range m.Events {
		b = appendMessageField(b, 1, marshalEventData(ev))
	}
	b = appendVarintField(b, 2, m.NextFromAggregateNonce)
	b = appendBoolField(b, 3, m.IsEnd)
	return b, nil
}

func (m *ReadStreamResponse) Unmarshal(data []byte) error {
	*m = ReadStreamResponse{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			ev, err := unmarshalEventData(v)
			if err != nil {
				return err
			}
			m.Events = append(m.Events, ev)
			data = data[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.NextFromAggregateNonce = v
			data = data[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.IsEnd = v != 0
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

// --- SubscribeRequest ---

func (m *SubscribeRequest) Marshal() ([]byte, error) {
	var b []byte
	b = appendStringField(b, 1, m.TenantID)
	b = appendStringField(b, 2, m.AggregateIDPrefix)
	b = appendVarintField(b, 3, m.FromGlobalNonce)
	return b, nil
}

func (m *SubscribeRequest) Unmarshal(data []byte) error {
	*m = SubscribeRequest{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.TenantID = v
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.AggregateIDPrefix = v
			data = data[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.FromGlobalNonce = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

// --- SubscribeResponse ---

func (m *SubscribeResponse) Marshal() ([]byte, error) {
	var b []byte
	b = appendStringField(b, 1, m.TenantID)
	b = appendStringField(b, 2, m.AggregateID)
	b = appendStringField(b, 3, m.AggregateType)
	b = appendMessageField(b, 4, marshalEventData(m.Event))
	return b, nil
}

func (m *SubscribeResponse) Unmarshal(data []byte) error {
	*m = SubscribeResponse{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.TenantID = v
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.AggregateID = v
			data = data[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.AggregateType = v
			data = data[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			ev, err := unmarshalEventData(v)
			if err != nil {
				return err
			}
			m.Event = ev
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

