package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensrf-project/opensrf-go/internal/message"
)

func TestMessageValueRoundTripRequest(t *testing.T) {
	reg := NewRegistry()
	RegisterOsrfClasses(reg)

	m := message.NewRequest(5, "en-US", "opensrf.math.add", []message.Value{message.Int(1), message.Int(2)})

	data, err := JSON(reg, MessageToValue(m))
	require.NoError(t, err)

	v, err := DecodeJSON(reg, data)
	require.NoError(t, err)

	decoded, err := ValueToMessage(v)
	require.NoError(t, err)
	assert.Equal(t, message.TypeRequest, decoded.Type)
	assert.Equal(t, 5, decoded.ThreadTrace)
	assert.Equal(t, "opensrf.math.add", decoded.Method.Method)
	assert.Len(t, decoded.Method.Params, 2)
}

func TestMessageValueRoundTripResult(t *testing.T) {
	reg := NewRegistry()
	RegisterOsrfClasses(reg)

	m := message.NewResult(5, "en-US", message.Int(3))
	data, err := JSON(reg, MessageToValue(m))
	require.NoError(t, err)

	v, err := DecodeJSON(reg, data)
	require.NoError(t, err)
	decoded, err := ValueToMessage(v)
	require.NoError(t, err)

	content, ok := decoded.Result.Content.Int()
	require.True(t, ok)
	assert.EqualValues(t, 3, content)
}

func TestMessagesToValueArrayRoundTrip(t *testing.T) {
	reg := NewRegistry()
	RegisterOsrfClasses(reg)

	msgs := []message.Message{
		message.NewResult(1, "en-US", message.String("c")),
		message.NewStatus(1, "en-US", message.StatusComplete),
	}

	data, err := JSON(reg, MessagesToValue(msgs))
	require.NoError(t, err)

	v, err := DecodeJSON(reg, data)
	require.NoError(t, err)

	decoded, err := ValueToMessages(v)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, message.TypeResult, decoded[0].Type)
	assert.Equal(t, message.TypeStatus, decoded[1].Type)
	assert.Equal(t, message.StatusComplete, decoded[1].Status.StatusCode)
}
