package wire

import (
	"reflect"
	"testing"

	"github.com/phautamaki/orchard/pkg/api"
)

func sampleTask() *api.Task {
	return &api.Task{
		ID:         "0b7f22c8-9f2e-4d3c-8a41-2f6f6f1f9a10",
		FunctionID: "math.add",
		Args: []api.TaskArg{
			api.ByValue(&api.Value{Kind: api.KindInt, Int: 2}),
			api.ByRef(api.ObjectRef(7)),
		},
		ReturnRefs: []api.ObjectRef{9},
	}
}

func roundTripTask(t *testing.T, c Codec) {
	t.Helper()

	in := sampleTask()
	data, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out api.Task
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, &out) {
		t.Fatalf("round trip mismatch:\n in: %+v\nout: %+v", in, &out)
	}
}

func TestCBOR_TaskRoundTrip(t *testing.T) {
	roundTripTask(t, CBOR())
}

func TestJSON_TaskRoundTrip(t *testing.T) {
	roundTripTask(t, JSON())
}

func TestCBOR_ValueTreeRoundTrip(t *testing.T) {
	in := &api.Value{
		Kind: api.KindObject,
		Tag:  "geometry.Point",
		Fields: map[string]*api.Value{
			"X":    {Kind: api.KindFloat, Float: 1.5},
			"Y":    {Kind: api.KindFloat, Float: -2.5},
			"Name": {Kind: api.KindString, Str: "origin-ish"},
			"Tags": {Kind: api.KindStringList, Strings: []string{"a", "b"}},
			"Prev": {Kind: api.KindRef, Ref: api.ObjectRef(3)},
		},
	}

	c := CBOR()
	data, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out api.Value
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, &out) {
		t.Fatalf("round trip mismatch:\n in: %+v\nout: %+v", in, &out)
	}
}

func TestCBOR_Deterministic(t *testing.T) {
	c := CBOR()
	a, err := c.Marshal(sampleTask())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	b, err := c.Marshal(sampleTask())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected canonical encoding to be byte-stable")
	}
}

func TestRegistry_ByName(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{"cbor", "json", "application/cbor", "application/json"} {
		c, err := r.ByName(name)
		if err != nil || c == nil {
			t.Fatalf("ByName(%q) = %v, %v", name, c, err)
		}
	}

	if _, err := r.ByName("msgpack"); err == nil {
		t.Fatalf("expected an error for an unknown format")
	}

	if got := r.Get("application/cbor"); got == nil {
		t.Fatalf("expected Get to find the CBOR codec")
	}
	if got := r.Get("nope"); got != nil {
		t.Fatalf("expected Get to return nil for unknown content type")
	}
}
