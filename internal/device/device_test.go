package device

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xatter/shellies-ng/internal/options"
	"github.com/Xatter/shellies-ng/internal/rpc"
)

// fakeHandler answers requests from a fixed table.
type fakeHandler struct {
	id      string
	results map[string]string
	err     error

	mu        sync.Mutex
	listeners []func(rpc.Notification)
	closed    bool
}

func (h *fakeHandler) DeviceID() string { return h.id }

func (h *fakeHandler) Protocol() options.Protocol { return options.ProtocolWebSocket }

func (h *fakeHandler) Connected() bool { return true }

func (h *fakeHandler) Request(_ context.Context, method string, _ any) (json.RawMessage, error) {
	if h.err != nil {
		return nil, h.err
	}
	return json.RawMessage(h.results[method]), nil
}

func (h *fakeHandler) OnNotification(fn func(rpc.Notification)) func() {
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		h.listeners = nil
		h.mu.Unlock()
	}
}

func (h *fakeHandler) Close() error {
	h.closed = true
	return nil
}

func (h *fakeHandler) emit(method, params string) {
	h.mu.Lock()
	fns := append([]func(rpc.Notification){}, h.listeners...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(rpc.Notification{Src: h.id, Method: method, Params: json.RawMessage(params)})
	}
}

func TestIdentifiers_Validate(t *testing.T) {
	assert.ErrorIs(t, Identifiers{Model: "SNSW-001X16EU"}.Validate(), ErrMissingID)
	assert.NoError(t, Identifiers{DeviceID: "shellyplus1-aa"}.Validate())
}

func TestIdentifiers_String(t *testing.T) {
	tests := []struct {
		ids  Identifiers
		want string
	}{
		{Identifiers{DeviceID: "shellyplus1-aa", Model: "SNSW-001X16EU", Address: "10.0.0.5"}, "shellyplus1-aa (SNSW-001X16EU) at 10.0.0.5"},
		{Identifiers{DeviceID: "shellyplus1-aa"}, "shellyplus1-aa (unknown model)"},
	}
	for _, tt := range tests {
		if got := tt.ids.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestCatalog_Lookup(t *testing.T) {
	c := DefaultCatalog()

	tests := []struct {
		model    string
		wantOK   bool
		wantName string
	}{
		{"SNSW-001X16EU", true, "Shelly Plus 1"},
		{"snsw-001x16eu", true, "Shelly Plus 1"},
		{"SPSW-004PE16EU", true, "Shelly Pro 4PM"},
		{"SPSW-001", true, "Shelly Pro switch"},
		{"SNSW-999Z", true, "Shelly Plus switch"},
		{"S3SW-001X16EU", true, "Shelly 1 Gen3"},
		{"SHSW-1", false, ""},
		{"", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			info, ok := c.Lookup(tt.model)
			if ok != tt.wantOK {
				t.Fatalf("Lookup(%q) ok = %v, want %v", tt.model, ok, tt.wantOK)
			}
			if info.Name != tt.wantName {
				t.Errorf("Lookup(%q) name = %q, want %q", tt.model, info.Name, tt.wantName)
			}
			if c.Recognizes(tt.model) != tt.wantOK {
				t.Errorf("Recognizes(%q) = %v, want %v", tt.model, !tt.wantOK, tt.wantOK)
			}
		})
	}
}

func TestCatalog_LongestPrefixWins(t *testing.T) {
	c := NewCatalog()
	c.RegisterPrefix(ModelInfo{Model: "SP", Name: "short"}, nil)
	c.RegisterPrefix(ModelInfo{Model: "SPSW-00", Name: "long"}, nil)

	info, ok := c.Lookup("SPSW-004PE16EU")
	require.True(t, ok)
	assert.Equal(t, "long", info.Name)
}

func TestCatalog_Construct(t *testing.T) {
	c := DefaultCatalog()
	h := &fakeHandler{id: "shellyplus1-aa"}

	d, err := c.Construct(Identifiers{DeviceID: "shellyplus1-aa", Model: "SNSW-001X16EU"}, h)
	require.NoError(t, err)
	assert.Equal(t, DeviceID("shellyplus1-aa"), d.ID())
	assert.Equal(t, "SNSW-001X16EU", d.Model())
	assert.Same(t, h, d.Handler().(*fakeHandler))

	shelly, ok := d.(*Shelly)
	require.True(t, ok)
	assert.Equal(t, "Shelly Plus 1", shelly.Name())

	_, err = c.Construct(Identifiers{DeviceID: "x", Model: "UNKNOWN"}, h)
	assert.ErrorIs(t, err, ErrUnrecognizedModel)
}

func TestCatalog_CustomFactory(t *testing.T) {
	c := NewCatalog()
	boom := errors.New("boom")
	c.Register(ModelInfo{Model: "TEST-1"}, func(Identifiers, ModelInfo, rpc.Handler) (Device, error) {
		return nil, boom
	})

	_, err := c.Construct(Identifiers{DeviceID: "t", Model: "TEST-1"}, &fakeHandler{})
	assert.ErrorIs(t, err, boom)
}

func TestShelly_LoadStatusAndConfig(t *testing.T) {
	h := &fakeHandler{
		id: "shellyplus1-aa",
		results: map[string]string{
			"Shelly.GetStatus": `{"switch:0":{"id":0,"output":false,"source":"init"},"sys":{"uptime":10}}`,
			"Shelly.GetConfig": `{"switch:0":{"id":0,"name":"Lamp"}}`,
		},
	}
	d := NewShelly(Identifiers{DeviceID: "shellyplus1-aa", Model: "SNSW-001X16EU"}, ModelInfo{}, h)

	require.NoError(t, d.LoadStatus(context.Background()))
	require.NoError(t, d.LoadConfig(context.Background()))

	status, ok := d.Status("switch:0")
	require.True(t, ok)
	assert.JSONEq(t, `{"id":0,"output":false,"source":"init"}`, string(status))

	cfg, ok := d.Config("switch:0")
	require.True(t, ok)
	assert.JSONEq(t, `{"id":0,"name":"Lamp"}`, string(cfg))

	_, ok = d.Status("cover:0")
	assert.False(t, ok)
}

func TestShelly_LoadStatusError(t *testing.T) {
	boom := errors.New("offline")
	h := &fakeHandler{id: "shellyplus1-aa", err: boom}
	d := NewShelly(Identifiers{DeviceID: "shellyplus1-aa"}, ModelInfo{}, h)

	assert.ErrorIs(t, d.LoadStatus(context.Background()), boom)
	assert.ErrorIs(t, d.LoadConfig(context.Background()), boom)
}

func TestShelly_NotifyStatusMerges(t *testing.T) {
	h := &fakeHandler{
		id: "shellyplus1-aa",
		results: map[string]string{
			"Shelly.GetStatus": `{"switch:0":{"id":0,"output":false,"source":"init"}}`,
		},
	}
	d := NewShelly(Identifiers{DeviceID: "shellyplus1-aa"}, ModelInfo{}, h)
	require.NoError(t, d.LoadStatus(context.Background()))

	h.emit("NotifyStatus", `{"ts":1700000000.5,"switch:0":{"id":0,"output":true,"source":"button"}}`)
	status, _ := d.Status("switch:0")
	assert.JSONEq(t, `{"id":0,"output":true,"source":"button"}`, string(status))

	h.emit("NotifyStatus", `{"switch:0":{"output":false}}`)
	status, _ = d.Status("switch:0")
	assert.JSONEq(t, `{"id":0,"output":false,"source":"button"}`, string(status))

	h.emit("NotifyFullStatus", `{"input:0":{"id":0,"state":true}}`)
	status, ok := d.Status("input:0")
	require.True(t, ok)
	assert.JSONEq(t, `{"id":0,"state":true}`, string(status))

	_, ok = d.Status("ts")
	assert.False(t, ok)

	// Events do not touch status.
	h.emit("NotifyEvent", `{"events":[]}`)
	assert.Len(t, d.StatusSnapshot(), 2)
}

func TestShelly_Close(t *testing.T) {
	h := &fakeHandler{id: "shellyplus1-aa"}
	d := NewShelly(Identifiers{DeviceID: "shellyplus1-aa"}, ModelInfo{}, h)

	require.NoError(t, d.Close())
	assert.True(t, h.closed)
	assert.Empty(t, h.listeners)
}
