package registry

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensrf-project/opensrf-go/internal/message"
	"github.com/opensrf-project/opensrf-go/internal/session"
)

func TestBuiltinSystemMethodsAreRegistered(t *testing.T) {
	r := New("opensrf.test")
	for _, name := range []string{"opensrf.system.time", "opensrf.system.echo", "opensrf.system.echo.atomic", "opensrf.system.introspect"} {
		_, ok := r.Lookup(name)
		assert.True(t, ok, "expected %s to be registered", name)
	}
}

func TestRegisterSynthesizesAtomicTwin(t *testing.T) {
	r := New("opensrf.test")
	called := 0
	r.Register("opensrf.test.reverse", func(ctx context.Context, req *session.ServerRequest, params []message.Value) error {
		called++
		return req.RespondCompleteOnly(ctx)
	}, 1, true, "")

	_, ok := r.Lookup("opensrf.test.reverse.atomic")
	require.True(t, ok)

	plain, ok := r.Lookup("opensrf.test.reverse")
	require.True(t, ok)
	assert.True(t, plain.Stream)
	assert.False(t, plain.Atomic)
}

func TestLookupUnknownMethodReportsMissing(t *testing.T) {
	r := New("opensrf.test")
	_, ok := r.Lookup("opensrf.test.nonexistent")
	assert.False(t, ok)
}

func TestAllListsMethodsUnderPrefix(t *testing.T) {
	r := New("opensrf.test")
	r.Register("opensrf.test.add", func(ctx context.Context, req *session.ServerRequest, params []message.Value) error {
		return nil
	}, 2, false, "adds two numbers")

	all := r.All()
	var matched int
	for _, m := range all {
		if strings.HasPrefix(m.APIName, "opensrf.test.") {
			matched++
		}
	}
	assert.GreaterOrEqual(t, matched, 1)
}
