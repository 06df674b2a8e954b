package dstore

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/dStats/lib/store"
	"github.com/ValentinKolb/dStats/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFSM() *RecordStateMachine {
	return CreateStateMachineFactory()(1, 1).(*RecordStateMachine)
}

func propose(t *testing.T, fsm *RecordStateMachine, cmds ...internal.Command) []sm.Entry {
	t.Helper()
	entries := make([]sm.Entry, len(cmds))
	for i, c := range cmds {
		entries[i] = sm.Entry{Index: uint64(i + 1), Cmd: c.Serialize()}
	}
	res, err := fsm.Update(entries)
	require.NoError(t, err)
	return res
}

func TestStateMachineUpdateLookup(t *testing.T) {
	fsm := newTestFSM()
	defer fsm.Close()

	res := propose(t, fsm,
		internal.Command{Type: internal.CommandTSet, Key: "k1", Value: []byte("v1")},
		internal.Command{Type: internal.CommandTSet, Key: "k2", Value: []byte("v2")},
		internal.Command{Type: internal.CommandTDelete, Key: "k2"},
	)
	for _, e := range res {
		assert.Equal(t, uint64(store.RetCSuccess), e.Result.Value, string(e.Result.Data))
	}

	got, err := fsm.Lookup(internal.Query{Type: internal.QueryTGet, Key: "k1"})
	require.NoError(t, err)
	assert.Equal(t, internal.QueryResult{Ok: true, Value: []byte("v1")}, got)

	has, err := fsm.Lookup(internal.Query{Type: internal.QueryTHas, Key: "k2"})
	require.NoError(t, err)
	assert.Equal(t, false, has)

	keys, err := fsm.Lookup(internal.Query{Type: internal.QueryTKeys})
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, keys)

	_, err = fsm.Lookup("not a query")
	assert.Error(t, err)
}

func TestStateMachineInvalidCommands(t *testing.T) {
	fsm := newTestFSM()
	defer fsm.Close()

	res, err := fsm.Update([]sm.Entry{
		{Index: 1, Cmd: nil},
		{Index: 2, Cmd: []byte{1}},
		{Index: 3, Cmd: (&internal.Command{Type: 99, Key: "k"}).Serialize()},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(store.RetCInvalidOperation), res[0].Result.Value)
	assert.Equal(t, uint64(store.RetCInternalError), res[1].Result.Value)
	assert.Equal(t, uint64(store.RetCInvalidOperation), res[2].Result.Value)
}

func TestStateMachineSnapshot(t *testing.T) {
	fsm := newTestFSM()
	defer fsm.Close()
	propose(t, fsm, internal.Command{Type: internal.CommandTSet, Key: "root", Value: []byte("record")})

	var buf bytes.Buffer
	require.NoError(t, fsm.SaveSnapshot(nil, &buf, nil, nil))

	restored := newTestFSM()
	defer restored.Close()
	require.NoError(t, restored.RecoverFromSnapshot(&buf, nil, nil))

	got, err := restored.Lookup(internal.Query{Type: internal.QueryTGet, Key: "root"})
	require.NoError(t, err)
	assert.Equal(t, internal.QueryResult{Ok: true, Value: []byte("record")}, got)
}
