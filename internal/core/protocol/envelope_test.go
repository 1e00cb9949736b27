package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/spriteserver/internal/core/models"
)

func TestRequestRoundTrip(t *testing.T) {
	req, err := NewRequest(MethodCreateEntity, CreateParams{X: 3, Y: 4})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, req.ID)

	data, err := Encode(req)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeRequest, got.Type)
	assert.Equal(t, req.ID, got.ID)

	var p CreateParams
	require.NoError(t, got.DecodeParams(&p))
	assert.Equal(t, CreateParams{X: 3, Y: 4}, p)
}

func TestDecodeParamsMissing(t *testing.T) {
	req, err := NewRequest(MethodCreateEntity, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, req.DecodeParams(&CreateParams{}), ErrInvalidParams)

	req.Params = json.RawMessage(`{"x":"left"}`)
	assert.ErrorIs(t, req.DecodeParams(&CreateParams{}), ErrInvalidParams)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrDeserializationFailed)

	_, err = Decode([]byte(`{"type":"request","method":"GetWidth"}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = Decode([]byte(`{"type":"gossip","id":"` + uuid.NewString() + `"}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = Decode([]byte(strings.Repeat(" ", MaxMessageSize+1)))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestResultAndError(t *testing.T) {
	req, err := NewRequest(MethodGetWidth, nil)
	require.NoError(t, err)

	resp := NewResult(req, 500)
	assert.Equal(t, req.ID, resp.ID)
	var w int
	require.NoError(t, resp.DecodeResult(&w))
	assert.Equal(t, 500, w)

	fail := NewError(req, CodeStore, "disk full")
	err = fail.DecodeResult(&w)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRemoteStore))
	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "disk full", e.Message)

	assert.NoError(t, NewResult(req, nil).DecodeResult(nil))
}

func TestErrorCodesUnwrap(t *testing.T) {
	cases := map[Code]error{
		CodeTransport:      ErrRemoteTransport,
		CodeStore:          ErrRemoteStore,
		CodeInvalidRequest: ErrRemoteRequest,
		CodeUnknownMethod:  ErrUnknownMethod,
		CodeInternal:       ErrRemoteInternal,
		Code("weird"):      ErrRemoteInternal,
	}
	for code, want := range cases {
		assert.ErrorIs(t, &Error{Code: code}, want, string(code))
	}
}

func TestPushCarriesSnapshot(t *testing.T) {
	watch := uuid.New()
	snap := SnapshotResult{
		Tick:    9,
		Hash:    ^uint64(0),
		Sprites: []models.Sprite{{ID: 1, X: 2, Y: 3, DX: 1, DY: -1, Color: models.ColorGreen}},
	}
	push, err := NewPush(watch, snap)
	require.NoError(t, err)

	data, err := Encode(push)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"hash":"18446744073709551615"`)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypePush, got.Type)
	assert.Equal(t, watch, got.ID)

	var back SnapshotResult
	require.NoError(t, got.DecodeResult(&back))
	assert.Equal(t, snap, back)
}

func TestMethodValid(t *testing.T) {
	for _, m := range []Method{MethodGetWidth, MethodGetHeight, MethodCreateEntity, MethodListEntities, MethodWatch} {
		assert.True(t, m.Valid(), m)
	}
	assert.False(t, Method("DeleteEntity").Valid())
}
