package options

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_NilResolverGivesDefaults(t *testing.T) {
	opts, err := Resolve(context.Background(), nil, "shellyplus1-AA")
	require.NoError(t, err)
	assert.Equal(t, DeviceOptions{}, opts)
	assert.False(t, opts.Exclude)
}

func TestResolve_Table(t *testing.T) {
	table := Table{
		"shellyplus1-AA": {Exclude: Bool(true)},
		"shellypro4pm-BB": {
			Protocol: ProtocolPtr(ProtocolOutboundWebSocket),
			Password: String("secret"),
		},
	}

	tests := []struct {
		id   string
		want DeviceOptions
	}{
		{"shellyplus1-AA", DeviceOptions{Exclude: true}},
		{"shellypro4pm-BB", DeviceOptions{Protocol: ProtocolOutboundWebSocket, Password: "secret"}},
		{"shellyplus2pm-CC", DeviceOptions{}},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := Resolve(context.Background(), table, tt.id)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Resolve(%s) mismatch (-want +got):\n%s", tt.id, diff)
			}
		})
	}
}

func TestResolve_FuncReadFreshEachTime(t *testing.T) {
	calls := 0
	exclude := false
	fn := Func(func(_ context.Context, id string) (Partial, error) {
		calls++
		return Partial{Exclude: Bool(exclude)}, nil
	})

	first, err := Resolve(context.Background(), fn, "a")
	require.NoError(t, err)
	assert.False(t, first.Exclude)

	exclude = true
	second, err := Resolve(context.Background(), fn, "a")
	require.NoError(t, err)
	assert.True(t, second.Exclude)
	assert.Equal(t, 2, calls)
}

func TestResolve_FuncError(t *testing.T) {
	boom := errors.New("lookup failed")
	fn := Func(func(context.Context, string) (Partial, error) { return Partial{}, boom })

	_, err := Resolve(context.Background(), fn, "a")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestResolve_InvalidProtocol(t *testing.T) {
	table := Table{"a": {Protocol: ProtocolPtr(Protocol("carrier-pigeon"))}}

	_, err := Resolve(context.Background(), table, "a")
	assert.ErrorIs(t, err, ErrInvalidProtocol)
}

func TestSource(t *testing.T) {
	table := Table{}
	fn := Func(func(context.Context, string) (Partial, error) { return Partial{}, nil })

	_, err := Source(table, fn)
	assert.ErrorIs(t, err, ErrConflictingSources)

	r, err := Source(table, nil)
	require.NoError(t, err)
	assert.IsType(t, Table{}, r)

	r, err = Source(nil, fn)
	require.NoError(t, err)
	assert.IsType(t, Func(nil), r)

	r, err = Source(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestParseProtocol(t *testing.T) {
	for _, s := range []string{"", "websocket", "outboundWebsocket"} {
		p, err := ParseProtocol(s)
		require.NoError(t, err, s)
		assert.Equal(t, Protocol(s), p)
	}

	_, err := ParseProtocol("mqtt")
	assert.ErrorIs(t, err, ErrInvalidProtocol)
}
