package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeProbesType(t *testing.T) {
	raw, err := EncodeFrom(TypeDiagramUpdate, DiagramUpdate{
		XML:   "<definitions/>",
		Locks: map[string]LockInfo{"Task_1": {UserID: "u1", UserName: "alice"}},
	}, "alice")
	require.NoError(t, err)

	env, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeDiagramUpdate, env.Type)
	assert.Equal(t, "alice", env.User)

	var upd DiagramUpdate
	require.NoError(t, env.DecodeData(&upd))
	assert.Equal(t, "<definitions/>", upd.XML)
	assert.Equal(t, "alice", upd.Locks["Task_1"].UserName)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("{"))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"data":{}}`))
	assert.Error(t, err, "missing type must be rejected")
}

func TestDecodeDataOnEmptyPayload(t *testing.T) {
	env, err := Decode([]byte(`{"type":"element_lock"}`))
	require.NoError(t, err)
	var req ElementLock
	assert.Error(t, env.DecodeData(&req))
}

func TestEncodeWithoutPayload(t *testing.T) {
	raw, err := Encode(TypePing, nil)
	require.NoError(t, err)
	env, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypePing, env.Type)
	assert.Empty(t, env.Data)
}
