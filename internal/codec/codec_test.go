package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensrf-project/opensrf-go/internal/message"
)

func TestJSONRoundTripScalars(t *testing.T) {
	reg := NewRegistry()
	cases := []message.Value{
		message.Null(),
		message.Bool(true),
		message.Bool(false),
		message.Int(42),
		message.Float(3.5),
		message.String("hello world"),
		message.Array(message.Int(1), message.String("a"), message.Null()),
	}

	for _, v := range cases {
		data, err := JSON(reg, v)
		require.NoError(t, err)

		decoded, err := DecodeJSON(reg, data)
		require.NoError(t, err)
		assert.True(t, message.Equal(v, decoded), "round trip mismatch for %+v -> %s -> %+v", v, data, decoded)
	}
}

func TestJSONRoundTripHashClass(t *testing.T) {
	reg := NewRegistry()
	reg.Register(ClassDescriptor{Hint: "osrfMethod", Keys: []string{"method", "params"}, Protocol: ProtocolHash})

	v := message.Class("osrfMethod", map[string]message.Value{
		"method": message.String("add"),
		"params": message.Array(message.Int(1), message.Int(2)),
	}, []string{"method", "params"})

	data, err := JSON(reg, v)
	require.NoError(t, err)
	require.Contains(t, string(data), JSONClassKey)

	decoded, err := DecodeJSON(reg, data)
	require.NoError(t, err)
	cls, ok := decoded.AsClass()
	require.True(t, ok)
	assert.Equal(t, "osrfMethod", cls.Hint)
	s, _ := cls.Fields["method"].String()
	assert.Equal(t, "add", s)
}

func TestJSONRoundTripArrayClass(t *testing.T) {
	reg := NewRegistry()
	reg.Register(ClassDescriptor{Hint: "osrfResult", Keys: []string{"status", "statusCode", "content"}, Protocol: ProtocolArray})

	v := message.Class("osrfResult", map[string]message.Value{
		"status":     message.String("OK"),
		"statusCode": message.Int(200),
		"content":    message.Int(3),
	}, []string{"status", "statusCode", "content"})

	data, err := JSON(reg, v)
	require.NoError(t, err)

	decoded, err := DecodeJSON(reg, data)
	require.NoError(t, err)
	cls, ok := decoded.AsClass()
	require.True(t, ok)
	code, _ := cls.Fields["statusCode"].Int()
	assert.EqualValues(t, 200, code)
}

func TestJSONArrayClassAbsentTrailingPositionsDecodeNull(t *testing.T) {
	reg := NewRegistry()
	reg.Register(ClassDescriptor{Hint: "osrfResult", Keys: []string{"status", "statusCode", "content"}, Protocol: ProtocolArray})

	// Only "status" is set; encode still walks all declared keys and
	// fills the missing trailing positions with null.
	v := message.Class("osrfResult", map[string]message.Value{
		"status": message.String("OK"),
	}, []string{"status"})

	data, err := JSON(reg, v)
	require.NoError(t, err)

	decoded, err := DecodeJSON(reg, data)
	require.NoError(t, err)
	cls, ok := decoded.AsClass()
	require.True(t, ok)
	assert.True(t, cls.Fields["content"].IsNull())
}

func TestJSONUnknownHintPreservesFields(t *testing.T) {
	reg := NewRegistry() // nothing registered

	v := message.Class("someUnknownHint", map[string]message.Value{
		"x": message.Int(1),
	}, []string{"x"})

	data, err := JSON(reg, v)
	require.NoError(t, err)

	decoded, err := DecodeJSON(reg, data)
	require.NoError(t, err)
	cls, ok := decoded.AsClass()
	require.True(t, ok)
	assert.Equal(t, "someUnknownHint", cls.Hint)
	iv, _ := cls.Fields["x"].Int()
	assert.EqualValues(t, 1, iv)
}

func TestXMLRoundTripScalars(t *testing.T) {
	reg := NewRegistry()
	cases := []message.Value{
		message.Null(),
		message.Bool(true),
		message.Bool(false),
		message.Int(42),
		message.String("hello world & friends"),
		message.Array(message.Int(1), message.String("a"), message.Null()),
	}

	for _, v := range cases {
		data, err := EncodeXML(reg, v)
		require.NoError(t, err)

		decoded, err := DecodeXML(reg, data)
		require.NoError(t, err)
		assert.True(t, message.Equal(v, decoded), "round trip mismatch for %+v -> %s -> %+v", v, data, decoded)
	}
}

func TestXMLEmptyStringAndNumberDecodeNull(t *testing.T) {
	reg := NewRegistry()
	decoded, err := DecodeXML(reg, []byte(`<string></string>`))
	require.NoError(t, err)
	assert.True(t, decoded.IsNull())

	decoded, err = DecodeXML(reg, []byte(`<number></number>`))
	require.NoError(t, err)
	assert.True(t, decoded.IsNull())
}

func TestXMLRoundTripArrayProtocolClass(t *testing.T) {
	reg := NewRegistry()
	reg.Register(ClassDescriptor{Hint: "osrfResult", Keys: []string{"status", "statusCode", "content"}, Protocol: ProtocolArray})

	v := message.Class("osrfResult", map[string]message.Value{
		"status":     message.String("OK"),
		"statusCode": message.Int(200),
		"content":    message.Int(3),
	}, []string{"status", "statusCode", "content"})

	data, err := EncodeXML(reg, v)
	require.NoError(t, err)
	require.Contains(t, string(data), `class_hint="osrfResult"`)

	decoded, err := DecodeXML(reg, data)
	require.NoError(t, err)
	cls, ok := decoded.AsClass()
	require.True(t, ok)
	code, _ := cls.Fields["statusCode"].Int()
	assert.EqualValues(t, 200, code)
}

func TestXMLRoundTripHashProtocolClass(t *testing.T) {
	reg := NewRegistry()
	reg.Register(ClassDescriptor{Hint: "osrfMethod", Keys: []string{"method", "params"}, Protocol: ProtocolHash})

	v := message.Class("osrfMethod", map[string]message.Value{
		"method": message.String("add"),
		"params": message.Array(message.Int(1), message.Int(2)),
	}, []string{"method", "params"})

	data, err := EncodeXML(reg, v)
	require.NoError(t, err)
	require.Contains(t, string(data), `<object class_hint="osrfMethod">`)

	decoded, err := DecodeXML(reg, data)
	require.NoError(t, err)
	cls, ok := decoded.AsClass()
	require.True(t, ok)
	s, _ := cls.Fields["method"].String()
	assert.Equal(t, "add", s)
}

func TestJSONDecodeThenEncodeJSONIsStable(t *testing.T) {
	reg := Default()
	reg.Register(ClassDescriptor{Hint: "osrfMessage", Keys: []string{"threadTrace", "type"}, Protocol: ProtocolHash})

	raw := []byte(`{"__c":"osrfMessage","__p":{"threadTrace":1,"type":"REQUEST"}}`)
	v, err := DecodeJSON(reg, raw)
	require.NoError(t, err)

	data, err := JSON(reg, v)
	require.NoError(t, err)

	v2, err := DecodeJSON(reg, data)
	require.NoError(t, err)
	assert.True(t, message.Equal(v, v2))
}
