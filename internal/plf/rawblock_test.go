package plf

import (
	"bytes"
	"compress/zlib"
	"testing"
	"time"
)

func TestScanHeadersClassifiesByCaptureGroup(t *testing.T) {
	// "DB!" marker: offset byte (o=1) then length byte (s=4) then name "DB12".
	buf := append([]byte("DB!"), 1, 4)
	buf = append(buf, []byte("DB12")...)

	blocks := scanHeaders(buf, time.Second, nil, nil)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 raw block, got %d", len(blocks))
	}
	if blocks[0].Kind != KindDB {
		t.Fatalf("expected KindDB, got %v", blocks[0].Kind)
	}
	if blocks[0].Name != "DB12" {
		t.Fatalf("expected name DB12, got %q", blocks[0].Name)
	}
}

func TestScanHeadersPlusBlockFallsBackToNameSubstring(t *testing.T) {
	buf := append([]byte("PLUSBLOCK"), 1, 5)
	buf = append(buf, []byte("FBfoo")...)

	blocks := scanHeaders(buf, time.Second, nil, nil)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 raw block, got %d", len(blocks))
	}
	if blocks[0].Kind != KindFB {
		t.Fatalf("expected KindFB from name substring test, got %v", blocks[0].Kind)
	}
}

func TestScanHeadersRejectsNonAlphanumericName(t *testing.T) {
	buf := append([]byte("DB!"), 1, 4)
	buf = append(buf, []byte("DB-1")...)

	blocks := scanHeaders(buf, time.Second, nil, nil)
	if len(blocks) != 0 {
		t.Fatalf("expected name with '-' to be rejected, got %d blocks", len(blocks))
	}
}

func TestScanNamesDirectSpan(t *testing.T) {
	// The name spans [match_end+1, match_end+name_size) with the upper end
	// exclusive, so a 4-byte name needs name_size 5.
	buf := append([]byte{0x01, 0x03}, []byte("DB")...)
	buf = append(buf, 5)
	buf = append(buf, []byte("DB99")...)

	blocks := scanNames(buf, time.Second, nil, nil)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 raw block, got %d", len(blocks))
	}
	if blocks[0].Name != "DB99" || blocks[0].Kind != KindDB {
		t.Fatalf("unexpected block: %+v", blocks[0])
	}
}

func TestScanAddressesAcceptsDBPrefixedToken(t *testing.T) {
	token := "%DB42.DBX0.0"
	buf := append([]byte{byte(len(token) + 1)}, []byte(token)...)

	recs := scanAddresses(buf, time.Second, nil, nil)
	if len(recs) != 1 {
		t.Fatalf("expected 1 address record, got %d", len(recs))
	}
	if recs[0].ReferenceAddress != 42 {
		t.Fatalf("expected reference address 42, got %d", recs[0].ReferenceAddress)
	}
}

func TestScanAddressesRejectsNonDBToken(t *testing.T) {
	buf := append([]byte{byte(len("%DBxyz") + 1)}, []byte("%DBxyz")...)
	recs := scanAddresses(buf, time.Second, nil, nil)
	if len(recs) != 0 {
		t.Fatalf("expected non-numeric token to be rejected, got %d", len(recs))
	}
}

func TestPostProcessAddressRecordsPrefersNamedOnCollision(t *testing.T) {
	recs := []AddressRecord{
		{Name: "", ReferenceAddress: 5, ByteOffset: 100},
		{Name: "DB5", ReferenceAddress: 5, ByteOffset: 100},
	}
	out := postProcessAddressRecords(recs)
	if len(out) != 1 || out[0].Name != "DB5" {
		t.Fatalf("expected the named record to win, got %+v", out)
	}
}

func TestPairDBBlocksToAddressesPicksNearestFollowing(t *testing.T) {
	blocks := []RawBlock{{Kind: KindDB, Name: "DB1", ByteOffset: 10}}
	records := []AddressRecord{
		{ReferenceAddress: 1, ByteOffset: 5},  // before, ineligible
		{ReferenceAddress: 2, ByteOffset: 50}, // far after
		{ReferenceAddress: 3, ByteOffset: 15}, // nearest after
	}
	pairDBBlocksToAddresses(blocks, records)
	if blocks[0].AddressRecord == nil || blocks[0].AddressRecord.ReferenceAddress != 3 {
		t.Fatalf("expected nearest-following pairing, got %+v", blocks[0].AddressRecord)
	}
}

func TestScanPlusBlocksExtractsAddressAndName(t *testing.T) {
	addr := "%DB7.DBX0.0"
	dataBlock := append([]byte{byte(len(addr) + 1)}, []byte(addr)...)
	// dataSize counts its own byte: the data block is
	// buf[match_end : match_end+dataSize].
	dataSize := byte(len(dataBlock) + 1)

	buf := append([]byte("PLUSBLOCK"), dataSize)
	buf = append(buf, dataBlock...)
	chainStart := len(buf) // match_end + dataSize

	// pad so byte offsets 53..55 (relative to PLUSBLOCK match start) are in range.
	for len(buf) < 55 {
		buf = append(buf, 0)
	}
	buf[53] = 7
	buf[54] = 0

	// chained name indirection: off1 at chainStart leads to off2 at 56,
	// which leads to the name's length byte at 57.
	buf = append(buf, 1, 1, 4)
	buf = append(buf, []byte("DB07")...)
	buf[chainStart] = byte(56 - chainStart)

	recs := scanPlusBlocks(buf, time.Second, nil, nil)
	if len(recs) != 1 {
		t.Fatalf("expected 1 PLUSBLOCK record, got %d", len(recs))
	}
	if recs[0].ReferenceAddress != 7 {
		t.Fatalf("expected reference address 7, got %d", recs[0].ReferenceAddress)
	}
	if recs[0].Name != "DB07" {
		t.Fatalf("expected name DB07, got %q", recs[0].Name)
	}
}

func zlibCompress(t *testing.T, data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("compress close: %v", err)
	}
	return buf.Bytes()
}
