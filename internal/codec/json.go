package codec

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/opensrf-project/opensrf-go/internal/message"
)

// Wire key names for registered-class envelopes (spec §4.1).
const (
	JSONClassKey   = "__c"
	JSONPayloadKey = "__p"
)

// JSON encodes a message.Value to its wire JSON form, promoting
// registered classes to {__c: hint, __p: payload} envelopes.
func JSON(reg *Registry, v message.Value) ([]byte, error) {
	raw, err := toRaw(reg, v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

// DecodeJSON parses wire JSON into a message.Value, promoting any
// {__c, __p} envelope whose hint is registered into a ClassValue.
// Unknown hints fall back to an opaque ClassValue that still preserves
// the payload fields (spec §3).
func DecodeJSON(reg *Registry, data []byte) (message.Value, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return message.Value{}, err
	}
	return fromRaw(reg, raw), nil
}

func toRaw(reg *Registry, v message.Value) (interface{}, error) {
	if b, ok := v.Bool(); ok {
		return b, nil
	}
	if i, ok := v.Int(); ok {
		return i, nil
	}
	if f, ok := v.Float(); ok {
		return f, nil
	}
	if s, ok := v.String(); ok {
		return s, nil
	}
	if arr, ok := v.Array(); ok {
		out := make([]interface{}, len(arr))
		for i, item := range arr {
			raw, err := toRaw(reg, item)
			if err != nil {
				return nil, err
			}
			out[i] = raw
		}
		return out, nil
	}
	if obj, order, ok := v.Object(); ok {
		out := make(map[string]interface{}, len(obj))
		for k, item := range obj {
			raw, err := toRaw(reg, item)
			if err != nil {
				return nil, err
			}
			out[k] = raw
		}
		_ = order // plain objects don't need ordering on the JSON wire
		return out, nil
	}
	if cls, ok := v.AsClass(); ok {
		desc, known := reg.Lookup(cls.Hint)
		var payload interface{}
		if known && desc.Protocol == ProtocolArray {
			arr := make([]interface{}, len(desc.Keys))
			for i, k := range desc.Keys {
				fv, present := cls.Fields[k]
				if !present {
					arr[i] = nil
					continue
				}
				raw, err := toRaw(reg, fv)
				if err != nil {
					return nil, err
				}
				arr[i] = raw
			}
			payload = arr
		} else {
			obj := make(map[string]interface{}, len(cls.Fields))
			for k, fv := range cls.Fields {
				raw, err := toRaw(reg, fv)
				if err != nil {
					return nil, err
				}
				obj[k] = raw
			}
			payload = obj
		}
		return map[string]interface{}{
			JSONClassKey:   cls.Hint,
			JSONPayloadKey: payload,
		}, nil
	}
	if v.IsNull() {
		return nil, nil
	}
	return nil, fmt.Errorf("codec: value has no recognized kind")
}

func fromRaw(reg *Registry, raw interface{}) message.Value {
	switch t := raw.(type) {
	case nil:
		return message.Null()
	case bool:
		return message.Bool(t)
	case float64:
		if t == float64(int64(t)) {
			return message.Int(int64(t))
		}
		return message.Float(t)
	case string:
		return message.String(t)
	case []interface{}:
		items := make([]message.Value, len(t))
		for i, item := range t {
			items[i] = fromRaw(reg, item)
		}
		return message.Array(items...)
	case map[string]interface{}:
		if hint, payload, ok := classEnvelope(t); ok {
			return decodeClassPayload(reg, hint, payload)
		}
		keys := make([]string, 0, len(t))
		values := make(map[string]message.Value, len(t))
		for k, item := range t {
			keys = append(keys, k)
			values[k] = fromRaw(reg, item)
		}
		sort.Strings(keys)
		return message.Object(keys, values)
	default:
		return message.Null()
	}
}

func classEnvelope(m map[string]interface{}) (hint string, payload interface{}, ok bool) {
	if len(m) != 2 {
		return "", nil, false
	}
	hintRaw, hasHint := m[JSONClassKey]
	payload, hasPayload := m[JSONPayloadKey]
	if !hasHint || !hasPayload {
		return "", nil, false
	}
	hint, ok = hintRaw.(string)
	return hint, payload, ok
}

func decodeClassPayload(reg *Registry, hint string, payload interface{}) message.Value {
	desc, known := reg.Lookup(hint)

	switch p := payload.(type) {
	case []interface{}:
		fields := make(map[string]message.Value, len(p))
		var order []string
		if known && desc.Protocol == ProtocolArray {
			order = desc.Keys
			for i, key := range desc.Keys {
				if i < len(p) {
					fields[key] = fromRaw(reg, p[i])
				} else {
					fields[key] = message.Null()
				}
			}
		} else {
			// Unknown hint with an array payload: preserve positionally
			// under synthetic indices so no data is lost.
			for i, item := range p {
				key := fmt.Sprintf("%d", i)
				order = append(order, key)
				fields[key] = fromRaw(reg, item)
			}
		}
		return message.Class(hint, fields, order)
	case map[string]interface{}:
		fields := make(map[string]message.Value, len(p))
		keys := make([]string, 0, len(p))
		for k, item := range p {
			fields[k] = fromRaw(reg, item)
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return message.Class(hint, fields, keys)
	default:
		return message.Class(hint, map[string]message.Value{}, nil)
	}
}
