package kvstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Darren9354/openr/state"
)

func TestMergeAcceptsNewKey(t *testing.T) {
	local := map[state.Key]state.Value{}
	incoming := map[state.Key]state.Value{
		"a": {Version: 1, OriginatorId: "n1", Value: []byte("v1"), Ttl: 1000},
	}
	res := Merge(local, incoming, nil, "")
	assert.Len(t, res.Updated, 1)
	assert.Equal(t, Merged, res.Outcomes["a"].Reason)
}

func TestMergeRejectsOlderVersion(t *testing.T) {
	local := map[state.Key]state.Value{
		"a": {Version: 2, OriginatorId: "n1", Value: []byte("v2"), Ttl: 1000},
	}
	incoming := map[state.Key]state.Value{
		"a": {Version: 1, OriginatorId: "n1", Value: []byte("v1"), Ttl: 1000},
	}
	res := Merge(local, incoming, nil, "")
	assert.Empty(t, res.Updated)
	assert.Equal(t, NoMergeOldVersion, res.Outcomes["a"].Reason)
}

func TestMergeTtlOnlyRefreshDoesNotChangeContent(t *testing.T) {
	local := map[state.Key]state.Value{
		"a": {Version: 1, OriginatorId: "n1", Value: []byte("v1"), Ttl: 1000, TtlVersion: 1},
	}
	incoming := map[state.Key]state.Value{
		"a": {Version: 1, OriginatorId: "n1", Value: []byte("v1"), Ttl: 2000, TtlVersion: 2},
	}
	res := Merge(local, incoming, nil, "")
	assert.Empty(t, res.Updated)
	assert.Len(t, res.TtlUpdated, 1)
	assert.Equal(t, NoMergeTtlUpdate, res.Outcomes["a"].Reason)
	assert.Equal(t, int64(2000), res.TtlUpdated["a"].Ttl)
}

func TestMergeRejectsStaleTtlVersion(t *testing.T) {
	local := map[state.Key]state.Value{
		"a": {Version: 1, OriginatorId: "n1", Value: []byte("v1"), Ttl: 1000, TtlVersion: 3},
	}
	incoming := map[state.Key]state.Value{
		"a": {Version: 1, OriginatorId: "n1", Value: []byte("v1"), Ttl: 1000, TtlVersion: 2},
	}
	res := Merge(local, incoming, nil, "")
	assert.Empty(t, res.Updated)
	assert.Empty(t, res.TtlUpdated)
	assert.Equal(t, NoMergeStaleTtlVersion, res.Outcomes["a"].Reason)
}

func TestMergeHigherOriginatorIdBreaksTie(t *testing.T) {
	local := map[state.Key]state.Value{
		"a": {Version: 1, OriginatorId: "n1", Value: []byte("x"), Ttl: 1000},
	}
	incoming := map[state.Key]state.Value{
		"a": {Version: 1, OriginatorId: "n2", Value: []byte("x"), Ttl: 1000},
	}
	res := Merge(local, incoming, nil, "")
	assert.Len(t, res.Updated, 1)
}

func TestMergeFiltersByKeyPrefix(t *testing.T) {
	local := map[state.Key]state.Value{}
	incoming := map[state.Key]state.Value{
		"adj:n1":    {Version: 1, OriginatorId: "n1", Ttl: 1000},
		"prefix:n1": {Version: 1, OriginatorId: "n1", Ttl: 1000},
	}
	res := Merge(local, incoming, []string{"adj:"}, "")
	assert.Len(t, res.Updated, 1)
	_, ok := res.Updated["adj:n1"]
	assert.True(t, ok)
	assert.Equal(t, NoMergeFilteredOut, res.Outcomes["prefix:n1"].Reason)
}

func TestMergeRejectsNonPositiveFiniteTtl(t *testing.T) {
	local := map[state.Key]state.Value{}
	incoming := map[state.Key]state.Value{
		"a": {Version: 1, OriginatorId: "n1", Value: []byte("v1"), Ttl: 0},
	}
	res := Merge(local, incoming, nil, "")
	assert.Empty(t, res.Updated)
	assert.Equal(t, NoMergeInvalidTtl, res.Outcomes["a"].Reason)
}

func TestMergeAcceptsInfiniteTtl(t *testing.T) {
	local := map[state.Key]state.Value{}
	incoming := map[state.Key]state.Value{
		"a": {Version: 1, OriginatorId: "n1", Value: []byte("v1"), Ttl: state.TtlInfinity},
	}
	res := Merge(local, incoming, nil, "")
	assert.Len(t, res.Updated, 1)
}

func TestMergeFlagsInconsistencyOnStaleSelfOriginatedKey(t *testing.T) {
	local := map[state.Key]state.Value{
		"name:n1": {Version: 2, OriginatorId: "n1", Value: []byte("current"), Ttl: 1000},
	}
	incoming := map[state.Key]state.Value{
		"name:n1": {Version: 1, OriginatorId: "n1", Value: []byte("stale"), Ttl: 1000},
	}
	res := Merge(local, incoming, nil, "n1")
	assert.Empty(t, res.Updated)
	assert.Equal(t, NoMergeOldVersion, res.Outcomes["name:n1"].Reason)
	assert.Equal(t, []state.Key{"name:n1"}, res.Inconsistent)
}

func TestMergeDoesNotFlagInconsistencyForKeysWeDoNotOwn(t *testing.T) {
	local := map[state.Key]state.Value{
		"name:n2": {Version: 2, OriginatorId: "n2", Value: []byte("current"), Ttl: 1000},
	}
	incoming := map[state.Key]state.Value{
		"name:n2": {Version: 1, OriginatorId: "n2", Value: []byte("stale"), Ttl: 1000},
	}
	res := Merge(local, incoming, nil, "n1")
	assert.Empty(t, res.Inconsistent)
}
