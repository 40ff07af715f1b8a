package plf

import "testing"

func TestFormatAddressConvertsDecimalSegmentsToUpperHex(t *testing.T) {
	got := formatAddress("7", "8A0E")
	if got != "8A0E7" {
		t.Fatalf("expected 8A0E7, got %q", got)
	}
	got = formatAddress("7.10", "8A0E")
	if got != "8A0E7.A" {
		t.Fatalf("expected 8A0E7.A, got %q", got)
	}
}

func TestFormatAddressLeavesNonNumericSegments(t *testing.T) {
	got := formatAddress("7.abc", "8A0E")
	if got != "8A0E7.abc" {
		t.Fatalf("expected non-numeric segment untouched, got %q", got)
	}
}

// TestMaterializeAddressesMinimalDB covers a single DB element with one
// scalar field.
func TestMaterializeAddressesMinimalDB(t *testing.T) {
	elements := []ElementBlock{
		{
			ID:      "guid-1",
			Name:    "FOO",
			Address: 7,
			Kind:    ElementRoot,
			BlockKind: KindDB,
			XML: &XmlBlock{
				IsRoot: true,
				Root: &Root{
					Header:  XmlElementHeader{ID: "guid-1", Name: "FOO"},
					Members: []MemberItem{{ID: "0", Name: "field", DataType: "Int", LID: "0"}},
				},
			},
		},
	}
	addrs := MaterializeAddresses(elements, 32, "", nil)

	want := map[string]string{"FOO": "8A0E7", "FOO.field": "8A0E7.0"}
	if len(addrs) != 2 {
		t.Fatalf("expected 2 addresses, got %+v", addrs)
	}
	for _, a := range addrs {
		if want[a.Name] != a.ReferenceAddress {
			t.Fatalf("unexpected address for %s: got %s want %s", a.Name, a.ReferenceAddress, want[a.Name])
		}
	}
}

// TestMaterializeAddressesArrayExpansion covers a DB element whose field is
// an array type, requiring per-index expansion.
func TestMaterializeAddressesArrayExpansion(t *testing.T) {
	elements := []ElementBlock{
		{
			ID:      "guid-1",
			Name:    "FOO",
			Address: 7,
			BlockKind: KindDB,
			XML: &XmlBlock{
				IsRoot: true,
				Root: &Root{
					Header:  XmlElementHeader{ID: "guid-1", Name: "FOO"},
					Members: []MemberItem{{ID: "0", Name: "field", DataType: "Array[0..2] of Int", LID: "0"}},
				},
			},
		},
	}
	addrs := MaterializeAddresses(elements, 32, "", nil)

	want := map[string]string{
		"FOO":            "8A0E7",
		"FOO.field":      "8A0E7.0",
		"FOO.field[0]":   "8A0E7.0.0",
		"FOO.field[1]":   "8A0E7.0.1",
		"FOO.field[2]":   "8A0E7.0.2",
	}
	if len(addrs) != len(want) {
		t.Fatalf("expected %d addresses, got %+v", len(want), addrs)
	}
	for _, a := range addrs {
		if want[a.Name] != a.ReferenceAddress {
			t.Fatalf("unexpected address for %s: got %s want %s", a.Name, a.ReferenceAddress, want[a.Name])
		}
	}
}

func TestMaterializeAddressesFiltersZeroAddressContainers(t *testing.T) {
	elements := []ElementBlock{{ID: "g", Name: "ZERO", Address: 0}}
	addrs := MaterializeAddresses(elements, 32, "", nil)
	if len(addrs) != 0 {
		t.Fatalf("expected zero-address container to be dropped, got %+v", addrs)
	}
}

func TestExpandArraysProducesExactRangeCount(t *testing.T) {
	item := PlcItem{Name: "field", DataType: "Array[0..4] of Int"}
	expandArrays(&item)
	if len(item.Children) != 5 {
		t.Fatalf("expected 5 children for range 0..4, got %d", len(item.Children))
	}
}
