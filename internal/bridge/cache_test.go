package bridge

import (
	"reflect"
	"testing"
)

func TestRetainedCacheOrder(t *testing.T) {
	c := NewRetainedCache()
	c.Store(Entry{Topic: "a", Payload: []byte("1"), QoS: 1, Retain: true})
	c.Store(Entry{Topic: "b", Payload: []byte("2")})
	c.Store(Entry{Topic: "a", Payload: []byte("3"), QoS: 0, Retain: false})

	want := []Entry{
		{Topic: "a", Payload: []byte("3")},
		{Topic: "b", Payload: []byte("2")},
	}
	if got := c.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestRetainedCacheGet(t *testing.T) {
	c := NewRetainedCache()
	if _, ok := c.Get("missing"); ok {
		t.Error("Get() on empty cache reported a hit")
	}

	c.Store(Entry{Topic: "t", Payload: []byte("v"), QoS: 2, Retain: true})
	e, ok := c.Get("t")
	if !ok || string(e.Payload) != "v" || e.QoS != 2 || !e.Retain {
		t.Errorf("Get() = (%+v, %v)", e, ok)
	}
}

func TestRetainedCacheSnapshotIsCopy(t *testing.T) {
	c := NewRetainedCache()
	c.Store(Entry{Topic: "t", Payload: []byte("v")})

	snap := c.Snapshot()
	c.Store(Entry{Topic: "u", Payload: []byte("w")})

	if len(snap) != 1 {
		t.Errorf("snapshot changed after Store: %+v", snap)
	}
}
