// Package message defines the protocol units carried inside a
// NetworkMessage body: osrfMessage, osrfMethod, osrfResult, and the
// status payloads, per spec §3–§4.2. Grounded on the teacher's
// JSON-RPC envelope shape (internal/domain/shared/jsonrpc.go /
// internal/domain/jsonrpc_models.go): a small closed set of message
// types, each carrying a typed payload, dispatched by a type switch.
package message

import "fmt"

// Type is the osrfMessage.type enum (spec §3).
type Type string

const (
	TypeConnect    Type = "CONNECT"
	TypeDisconnect Type = "DISCONNECT"
	TypeRequest    Type = "REQUEST"
	TypeResult     Type = "RESULT"
	TypeStatus     Type = "STATUS"
)

// Method is the osrfMethod payload carried by REQUEST messages.
type Method struct {
	Method string
	Params []Value
}

// Result is the osrfResult payload carried by RESULT messages.
type Result struct {
	Status     string
	StatusCode int
	Content    Value
}

// Status is the osrfConnectStatus / osrfMethodException payload carried
// by STATUS messages.
type Status struct {
	Status     string
	StatusCode StatusCode
}

// Message is one osrfMessage protocol unit (spec §3).
type Message struct {
	ThreadTrace int
	Locale      string
	Type        Type
	Method      *Method // set iff Type == TypeRequest
	Result      *Result // set iff Type == TypeResult
	Status      *Status // set iff Type == TypeConnect/TypeDisconnect status replies or TypeStatus
}

// NewConnect builds a CONNECT message. threadTrace is always 0 for
// CONNECT per spec §4.3.
func NewConnect(locale string) Message {
	return Message{ThreadTrace: 0, Locale: locale, Type: TypeConnect}
}

// NewDisconnect builds a DISCONNECT message.
func NewDisconnect(locale string) Message {
	return Message{ThreadTrace: 0, Locale: locale, Type: TypeDisconnect}
}

// NewRequest builds a REQUEST message carrying a method call.
func NewRequest(threadTrace int, locale, method string, params []Value) Message {
	return Message{
		ThreadTrace: threadTrace,
		Locale:      locale,
		Type:        TypeRequest,
		Method:      &Method{Method: method, Params: params},
	}
}

// NewResult builds a RESULT message carrying content for threadTrace.
func NewResult(threadTrace int, locale string, content Value) Message {
	return Message{
		ThreadTrace: threadTrace,
		Locale:      locale,
		Type:        TypeResult,
		Result:      &Result{Status: "OK", StatusCode: int(StatusOK), Content: content},
	}
}

// NewStatus builds a STATUS message for threadTrace.
func NewStatus(threadTrace int, locale string, code StatusCode) Message {
	return Message{
		ThreadTrace: threadTrace,
		Locale:      locale,
		Type:        TypeStatus,
		Status:      &Status{Status: code.Text(), StatusCode: code},
	}
}

// String implements fmt.Stringer for log lines.
func (m Message) String() string {
	switch m.Type {
	case TypeRequest:
		return fmt.Sprintf("REQUEST[%d] %s(%d args)", m.ThreadTrace, m.Method.Method, len(m.Method.Params))
	case TypeResult:
		return fmt.Sprintf("RESULT[%d] status=%d", m.ThreadTrace, m.Result.StatusCode)
	case TypeStatus:
		return fmt.Sprintf("STATUS[%d] code=%d", m.ThreadTrace, m.Status.StatusCode)
	default:
		return string(m.Type)
	}
}
