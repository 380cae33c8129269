package codec

import (
	"fmt"

	"github.com/opensrf-project/opensrf-go/internal/message"
)

// Wire class hints for the osrfMessage envelope family (spec §3). These
// are ordinary registered classes; RegisterOsrfClasses installs them
// into a Registry so JSON/XML encode/decode promote them automatically.
const (
	HintMessage = "osrfMessage"
	HintMethod  = "osrfMethod"
	HintResult  = "osrfResult"
	HintStatus  = "osrfConnectStatus"
)

// RegisterOsrfClasses registers the built-in protocol classes. Callers
// building a Runtime should call this once on the registry they hand to
// the codec, alongside any application-defined classes.
func RegisterOsrfClasses(reg *Registry) {
	reg.Register(ClassDescriptor{Hint: HintMessage, Keys: []string{"threadTrace", "locale", "type", "payload"}, Protocol: ProtocolHash})
	reg.Register(ClassDescriptor{Hint: HintMethod, Keys: []string{"method", "params"}, Protocol: ProtocolHash})
	reg.Register(ClassDescriptor{Hint: HintResult, Keys: []string{"status", "statusCode", "content"}, Protocol: ProtocolHash})
	reg.Register(ClassDescriptor{Hint: HintStatus, Keys: []string{"status", "statusCode"}, Protocol: ProtocolHash})
}

// MessageToValue converts a protocol message.Message into the Value tree
// its registered-class wire form describes.
func MessageToValue(m message.Message) message.Value {
	var payload message.Value
	switch m.Type {
	case message.TypeRequest:
		payload = message.Class(HintMethod, map[string]message.Value{
			"method": message.String(m.Method.Method),
			"params": message.Array(m.Method.Params...),
		}, []string{"method", "params"})
	case message.TypeResult:
		payload = message.Class(HintResult, map[string]message.Value{
			"status":     message.String(m.Result.Status),
			"statusCode": message.Int(int64(m.Result.StatusCode)),
			"content":    m.Result.Content,
		}, []string{"status", "statusCode", "content"})
	default:
		if m.Status != nil {
			payload = message.Class(HintStatus, map[string]message.Value{
				"status":     message.String(m.Status.Status),
				"statusCode": message.Int(int64(m.Status.StatusCode)),
			}, []string{"status", "statusCode"})
		} else {
			payload = message.Null()
		}
	}
	return message.Class(HintMessage, map[string]message.Value{
		"threadTrace": message.Int(int64(m.ThreadTrace)),
		"locale":      message.String(m.Locale),
		"type":        message.String(string(m.Type)),
		"payload":     payload,
	}, []string{"threadTrace", "locale", "type", "payload"})
}

// ValueToMessage is the inverse of MessageToValue.
func ValueToMessage(v message.Value) (message.Message, error) {
	cls, ok := v.AsClass()
	if !ok || cls.Hint != HintMessage {
		return message.Message{}, fmt.Errorf("codec: expected %s envelope", HintMessage)
	}
	tt, _ := cls.Fields["threadTrace"].Int()
	locale, _ := cls.Fields["locale"].String()
	typStr, _ := cls.Fields["type"].String()
	typ := message.Type(typStr)

	out := message.Message{ThreadTrace: int(tt), Locale: locale, Type: typ}
	payload, hasPayload := cls.Fields["payload"]
	if !hasPayload || payload.IsNull() {
		return out, nil
	}

	switch typ {
	case message.TypeRequest:
		if pc, ok := payload.AsClass(); ok {
			method, _ := pc.Fields["method"].String()
			params, _ := pc.Fields["params"].Array()
			out.Method = &message.Method{Method: method, Params: params}
		}
	case message.TypeResult:
		if pc, ok := payload.AsClass(); ok {
			status, _ := pc.Fields["status"].String()
			code, _ := pc.Fields["statusCode"].Int()
			content := pc.Fields["content"]
			out.Result = &message.Result{Status: status, StatusCode: int(code), Content: content}
		}
	default:
		if pc, ok := payload.AsClass(); ok {
			status, _ := pc.Fields["status"].String()
			code, _ := pc.Fields["statusCode"].Int()
			out.Status = &message.Status{Status: status, StatusCode: message.StatusCode(code)}
		}
	}
	return out, nil
}

// MessagesToValue wraps a NetworkMessage body (an ordered list of
// osrfMessage) as a single array Value.
func MessagesToValue(msgs []message.Message) message.Value {
	items := make([]message.Value, len(msgs))
	for i, m := range msgs {
		items[i] = MessageToValue(m)
	}
	return message.Array(items...)
}

// ValueToMessages is the inverse of MessagesToValue.
func ValueToMessages(v message.Value) ([]message.Message, error) {
	arr, ok := v.Array()
	if !ok {
		return nil, fmt.Errorf("codec: expected array of %s", HintMessage)
	}
	out := make([]message.Message, 0, len(arr))
	for _, item := range arr {
		m, err := ValueToMessage(item)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
