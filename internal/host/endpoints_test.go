package host

import (
	"errors"
	"testing"

	"matter-light-bridge/internal/datamodel"
	"matter-light-bridge/internal/datamodel/clusters"
)

func newTestTable(capacity int) *EndpointTable {
	return NewEndpointTable([]Endpoint{
		{ID: 0, Type: &rootEndpointType},
		{ID: 1, Parent: 0, Type: &aggregatorEndpointType},
	}, capacity)
}

func TestEndpointTableFirstDynamic(t *testing.T) {
	tbl := newTestTable(4)
	if got := tbl.FirstDynamicEndpointID(); got != 2 {
		t.Errorf("first dynamic = %d, want 2", got)
	}
	if tbl.Capacity() != 4 {
		t.Errorf("capacity = %d, want 4", tbl.Capacity())
	}
}

func TestEndpointTableCollisions(t *testing.T) {
	tbl := newTestTable(4)
	ep := &clusters.OnOffLightEndpoint

	if err := tbl.SetDynamicEndpoint(0, 2, ep, clusters.OnOffLightDeviceTypes, 1); err != nil {
		t.Fatal(err)
	}
	if err := tbl.SetDynamicEndpoint(1, 2, ep, nil, 1); !errors.Is(err, ErrEndpointExists) {
		t.Errorf("duplicate dynamic id: err = %v, want ErrEndpointExists", err)
	}
	if err := tbl.SetDynamicEndpoint(1, 1, ep, nil, 1); !errors.Is(err, ErrEndpointExists) {
		t.Errorf("fixed id: err = %v, want ErrEndpointExists", err)
	}
	if err := tbl.SetDynamicEndpoint(0, 3, ep, nil, 1); !errors.Is(err, ErrIndexInUse) {
		t.Errorf("used index: err = %v, want ErrIndexInUse", err)
	}
	if err := tbl.SetDynamicEndpoint(4, 3, ep, nil, 1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("bad index: err = %v, want ErrIndexOutOfRange", err)
	}
	if err := tbl.SetDynamicEndpoint(1, datamodel.InvalidEndpointID, ep, nil, 1); !errors.Is(err, ErrInvalidEndpoint) {
		t.Errorf("invalid id: err = %v, want ErrInvalidEndpoint", err)
	}
}

func TestEndpointTableClearAndLookup(t *testing.T) {
	tbl := newTestTable(2)
	ep := &clusters.DimmableLightEndpoint
	if err := tbl.SetDynamicEndpoint(1, 7, ep, clusters.DimmableLightDeviceTypes, 1); err != nil {
		t.Fatal(err)
	}
	if idx, ok := tbl.DynamicIndex(7); !ok || idx != 1 {
		t.Errorf("DynamicIndex(7) = %d, %v", idx, ok)
	}
	if _, ok := tbl.DynamicIndex(1); ok {
		t.Error("fixed endpoint must not have a dynamic index")
	}
	got, ok := tbl.Endpoint(7)
	if !ok || got.TypeName != "dimmable_light" || !got.Dynamic {
		t.Errorf("Endpoint(7) = %+v, %v", got, ok)
	}

	if id, ok := tbl.ClearDynamicEndpoint(1); !ok || id != 7 {
		t.Errorf("Clear = %d, %v", id, ok)
	}
	if _, ok := tbl.Endpoint(7); ok {
		t.Error("endpoint still present after clear")
	}
	if _, ok := tbl.ClearDynamicEndpoint(1); ok {
		t.Error("second clear should report false")
	}
}

func TestEndpointTableEndpointsSorted(t *testing.T) {
	tbl := newTestTable(3)
	tbl.SetDynamicEndpoint(0, 9, &clusters.OnOffLightEndpoint, nil, 1)
	tbl.SetDynamicEndpoint(2, 4, &clusters.OnOffLightEndpoint, nil, 1)

	eps := tbl.Endpoints()
	want := []datamodel.EndpointID{0, 1, 4, 9}
	if len(eps) != len(want) {
		t.Fatalf("len = %d, want %d", len(eps), len(want))
	}
	for i, id := range want {
		if eps[i].ID != id {
			t.Errorf("eps[%d] = %d, want %d", i, eps[i].ID, id)
		}
	}
	if kids := tbl.children(1); len(kids) != 2 {
		t.Errorf("children(1) = %v, want 2 entries", kids)
	}
}
