package plf

import (
	"encoding/binary"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var headerScanPattern = regexp.MustCompile(`(UDT|FB|DB|OB|FC)!|PLUSBLOCK`)
var nameScanPattern = regexp.MustCompile("\x01\x03(DB|OB|FC|FB)")
var addressScanPattern = regexp.MustCompile(`%DB`)
var plusBlockLiteral = []byte("PLUSBLOCK")
var addressCleanPattern = regexp.MustCompile(`[^A-Za-z0-9.@_-]`)
var addressAcceptPattern = regexp.MustCompile(`^DB\d+`)
var leadingDigitsPattern = regexp.MustCompile(`\d+`)

// classifyPrecedence is the substring-test order used to classify a raw
// block name when the header's own label byte doesn't resolve to a kind.
var classifyPrecedence = []struct {
	substr string
	kind   BlockKind
}{
	{"UDT", KindUDT},
	{"FB", KindFB},
	{"DB", KindDB},
	{"OB", KindOB},
	{"FC", KindFC},
}

func kindFromLabel(label string) BlockKind {
	switch label {
	case "UDT":
		return KindUDT
	case "FB":
		return KindFB
	case "DB":
		return KindDB
	case "OB":
		return KindOB
	case "FC":
		return KindFC
	default:
		return KindUndefined
	}
}

func classifyByName(name string) BlockKind {
	for _, c := range classifyPrecedence {
		if strings.Contains(name, c.substr) {
			return c.kind
		}
	}
	return KindUndefined
}

func safeByte(buf []byte, i int) (byte, bool) {
	if i < 0 || i >= len(buf) {
		return 0, false
	}
	return buf[i], true
}

func safeSlice(buf []byte, i, j int) ([]byte, bool) {
	if i < 0 || j < i || j > len(buf) {
		return nil, false
	}
	return buf[i:j], true
}

func isAlnumASCII(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}

// ExtractRawBlocks is pass 3: the Raw-Block Extractor.
func ExtractRawBlocks(buf []byte, timeout time.Duration, log Logger) ([]RawBlock, []AddressRecord) {
	sink := &FaultSink{}
	rawBlocks := scanHeaders(buf, timeout, sink, log)
	rawBlocks = append(rawBlocks, scanNames(buf, timeout, sink, log)...)

	addrRecords := scanAddresses(buf, timeout, sink, log)
	addrRecords = append(addrRecords, scanPlusBlocks(buf, timeout, sink, log)...)
	addrRecords = postProcessAddressRecords(addrRecords)

	pairDBBlocksToAddresses(rawBlocks, addrRecords)
	if len(sink.Faults) > 0 && log != nil {
		log.Debug("raw block extraction: %d faults skipped", len(sink.Faults))
	}
	return rawBlocks, addrRecords
}

func scanHeaders(buf []byte, timeout time.Duration, sink *FaultSink, log Logger) []RawBlock {
	var out []RawBlock
	matches, ok := boundedFindAllSubmatchIndex(headerScanPattern, buf, timeout)
	if !ok {
		sink.Warn(log, RegexTimeout, 0, "scanning block headers")
		return out
	}
	for _, m := range matches {
		i, end := m[0], m[1]
		var group string
		if m[2] >= 0 && m[3] >= 0 {
			group = string(buf[m[2]:m[3]])
		}
		L := end - i

		o, ok := safeByte(buf, i+L)
		if !ok {
			continue
		}
		s, ok := safeByte(buf, i+L+int(o))
		if !ok {
			continue
		}
		// The name begins right after its length byte s.
		nameStart := i + L + int(o) + 1
		nameBytes, ok := safeSlice(buf, nameStart, nameStart+int(s))
		if !ok {
			sink.Warn(log, TokenizationMismatch, i, "header name out of range")
			continue
		}
		name := string(nameBytes)
		if !isAlnumASCII(name) {
			continue
		}

		kind := kindFromLabel(strings.TrimSuffix(group, "!"))
		if kind == KindUndefined {
			kind = classifyByName(name)
		}
		if kind == KindUndefined {
			sink.Warn(log, UnclassifiedBlock, i, "%s", name)
			continue
		}

		out = append(out, RawBlock{Kind: kind, Name: name, ByteOffset: i})
	}
	return out
}

func scanNames(buf []byte, timeout time.Duration, sink *FaultSink, log Logger) []RawBlock {
	var out []RawBlock
	matches, ok := boundedFindAllSubmatchIndex(nameScanPattern, buf, timeout)
	if !ok {
		sink.Warn(log, RegexTimeout, 0, "scanning block names")
		return out
	}
	for _, m := range matches {
		start, end := m[0], m[1]
		group := string(buf[m[2]:m[3]])
		kind := kindFromLabel(group)

		nameSize, ok := safeByte(buf, end)
		if !ok {
			continue
		}

		var name []byte
		if nameSize == 33 {
			if b33, ok := safeByte(buf, end+33); ok && b33 == 33 {
				name, _ = safeSlice(buf, end+1, end+33)
			} else {
				offset, ok := safeByte(buf, end+1)
				if !ok {
					continue
				}
				size, ok := safeByte(buf, end+1+int(offset))
				if !ok {
					continue
				}
				name, ok = safeSlice(buf, end+2+int(offset), end+2+int(offset)+int(size)-1)
				if !ok {
					sink.Warn(log, TokenizationMismatch, start, "chained name out of range")
					continue
				}
			}
		} else {
			var ok bool
			name, ok = safeSlice(buf, end+1, end+int(nameSize))
			if !ok {
				sink.Warn(log, TokenizationMismatch, start, "name out of range")
				continue
			}
		}

		out = append(out, RawBlock{Kind: kind, Name: string(name), ByteOffset: start})
	}
	return out
}

func scanAddresses(buf []byte, timeout time.Duration, sink *FaultSink, log Logger) []AddressRecord {
	var out []AddressRecord
	matches, ok := boundedFindAll(addressScanPattern, buf, timeout)
	if !ok {
		sink.Warn(log, RegexTimeout, 0, "scanning %%DB addresses")
		return out
	}
	for _, m := range matches {
		i := m[0]
		sizeByte, ok := safeByte(buf, i-1)
		if !ok || sizeByte == 0 {
			continue
		}
		addressSize := int(sizeByte)

		rawToken, ok := safeSlice(buf, i, i+addressSize-1)
		if !ok {
			sink.Warn(log, TokenizationMismatch, i, "%%DB token out of range")
			continue
		}
		token := string(rawToken)
		cleaned := addressCleanPattern.ReplaceAllString(token, "")
		if !addressAcceptPattern.MatchString(cleaned) {
			continue
		}
		digits := leadingDigitsPattern.FindString(cleaned)
		n, err := strconv.ParseUint(digits, 10, 16)
		if err != nil {
			sink.Warn(log, UnparseableAddress, i, "%q", token)
			continue
		}

		rec := AddressRecord{
			Name:             "",
			Token:            cleaned,
			ReferenceAddress: uint16(n),
			ByteOffset:       i,
		}

		// The blob length is read at an offset computed from the raw
		// (pre-cleaning) token length, not the cleaned token: the container
		// writer never re-measures the token after stripping punctuation.
		blobLenPos := i + len(rawToken)
		if lenBytes, ok := safeSlice(buf, blobLenPos, blobLenPos+2); ok {
			blobLen := int(binary.LittleEndian.Uint16(lenBytes))
			if blobLen != 0 {
				if blobBytes, ok := safeSlice(buf, blobLenPos, blobLenPos+blobLen); ok {
					data, err := decompressExact(blobBytes)
					if err == nil {
						rec.Blob = &CompressedBlob{ByteOffset: blobLenPos, ByteSize: blobLen, Data: data}
					}
				}
			}
		}

		out = append(out, rec)
	}
	return out
}

func scanPlusBlocks(buf []byte, timeout time.Duration, sink *FaultSink, log Logger) []AddressRecord {
	var out []AddressRecord
	positions := findAll(buf, plusBlockLiteral)
	_ = timeout // literal scan, not a regexp; kept for signature symmetry
	for _, matchIndex := range positions {
		matchEnd := matchIndex + len(plusBlockLiteral)
		dataSizeByte, ok := safeByte(buf, matchEnd)
		if !ok {
			continue
		}
		dataSize := int(dataSizeByte)

		dataBlockData, ok := safeSlice(buf, matchEnd, matchEnd+dataSize)
		if !ok {
			sink.Warn(log, TokenizationMismatch, matchIndex, "PLUSBLOCK data out of range")
			continue
		}

		rec, hasAddr := plusBlockAddress(buf, matchIndex, matchEnd, dataBlockData, sink, log)
		if hasAddr {
			out = append(out, rec)
		}
	}
	return out
}

func plusBlockAddress(buf []byte, matchIndex, matchEnd int, dataBlockData []byte, sink *FaultSink, log Logger) (AddressRecord, bool) {
	m := indexOf(dataBlockData, "%DB")
	if m < 0 {
		return AddressRecord{}, false
	}
	if m == 0 {
		return AddressRecord{}, false
	}
	addressStringSize := int(dataBlockData[m-1])
	addrToken, ok := safeSlice(dataBlockData, m, m+addressStringSize-1)
	if !ok {
		sink.Warn(log, TokenizationMismatch, matchIndex, "PLUSBLOCK address token out of range")
		return AddressRecord{}, false
	}

	addrBytes, ok := safeSlice(buf, matchIndex+53, matchIndex+55)
	if !ok {
		sink.Warn(log, TokenizationMismatch, matchIndex, "PLUSBLOCK reference address out of range")
		return AddressRecord{}, false
	}
	refAddr := binary.LittleEndian.Uint16(addrBytes)

	dataSize := len(dataBlockData)
	rec := AddressRecord{
		Token:            string(addrToken),
		ReferenceAddress: refAddr,
		ByteOffset:       matchIndex,
	}

	if indicator, ok := safeByte(buf, matchEnd+dataSize+1); ok && indicator != 0 {
		lenPos := matchEnd + dataSize + 2
		if lenBytes, ok := safeSlice(buf, lenPos, lenPos+2); ok {
			blobLen := int(binary.LittleEndian.Uint16(lenBytes))
			blobStart := lenPos + 2
			if blobLen > 0 {
				if blobBytes, ok := safeSlice(buf, blobStart, blobStart+blobLen); ok {
					if data, err := decompressExact(blobBytes); err == nil {
						rec.Blob = &CompressedBlob{ByteOffset: blobStart, ByteSize: blobLen, Data: data}
					}
				}
			}
		}
	}

	if name, ok := plusBlockName(buf, matchEnd, dataSize); ok {
		rec.Name = name
	}

	return rec, true
}

// plusBlockName follows the two chained length-prefix indirections that
// trail a PLUSBLOCK record to recover its human-readable block name.
func plusBlockName(buf []byte, matchEnd, dataSize int) (string, bool) {
	base := matchEnd + dataSize
	off1, ok := safeByte(buf, base)
	if !ok {
		return "", false
	}
	pos1 := base + int(off1)
	off2, ok := safeByte(buf, pos1)
	if !ok {
		return "", false
	}
	pos2 := pos1 + int(off2)
	nameSize, ok := safeByte(buf, pos2)
	if !ok {
		return "", false
	}
	nameBytes, ok := safeSlice(buf, pos2+1, pos2+1+int(nameSize))
	if !ok {
		return "", false
	}
	name := string(nameBytes)
	if !strings.Contains(name, "DB") {
		return "", false
	}
	return name, true
}

func indexOf(haystack []byte, needle string) int {
	n := []byte(needle)
	for i := 0; i+len(n) <= len(haystack); i++ {
		if string(haystack[i:i+len(n)]) == needle {
			return i
		}
	}
	return -1
}

// postProcessAddressRecords groups by byte offset (keeping only named
// records when a group has more than one) and sorts by reference address.
func postProcessAddressRecords(records []AddressRecord) []AddressRecord {
	byOffset := map[int][]AddressRecord{}
	var order []int
	for _, r := range records {
		if _, seen := byOffset[r.ByteOffset]; !seen {
			order = append(order, r.ByteOffset)
		}
		byOffset[r.ByteOffset] = append(byOffset[r.ByteOffset], r)
	}

	var out []AddressRecord
	for _, off := range order {
		group := byOffset[off]
		if len(group) > 1 {
			var named []AddressRecord
			for _, r := range group {
				if r.Name != "" {
					named = append(named, r)
				}
			}
			if len(named) > 0 {
				group = named
			}
		}
		out = append(out, group...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ReferenceAddress < out[j].ReferenceAddress })
	return out
}

// pairDBBlocksToAddresses attaches, to each DB RawBlock, the AddressRecord
// with the smallest positive byte distance following it.
func pairDBBlocksToAddresses(blocks []RawBlock, records []AddressRecord) {
	for i := range blocks {
		if blocks[i].Kind != KindDB {
			continue
		}
		r := blocks[i].ByteOffset
		best := -1
		bestDist := 0
		for j := range records {
			d := records[j].ByteOffset - r
			if d <= 0 {
				continue
			}
			if best == -1 || d < bestDist {
				best = j
				bestDist = d
			}
		}
		if best >= 0 {
			blocks[i].AddressRecord = &records[best]
		}
	}
}
