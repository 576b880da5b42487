package types

import "testing"

func TestAddressSnapshotValueScan(t *testing.T) {
	in := AddressSnapshot{FullName: "Ada Lovelace", Phone: "555-0100", Street: "1 Main", City: "Springfield", State: "IL", Country: "US"}
	raw, err := in.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var out AddressSnapshot
	if err := out.Scan([]byte(raw.(string))); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if out != in {
		t.Fatalf("expected %+v got %+v", in, out)
	}
}

func TestAddressSnapshotScanNilAndBadType(t *testing.T) {
	snap := AddressSnapshot{City: "stale"}
	if err := snap.Scan(nil); err != nil || snap.City != "" {
		t.Fatalf("nil scan should reset snapshot, got %+v err=%v", snap, err)
	}
	if err := snap.Scan(42); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}
