package plf

import (
	"encoding/binary"
	"encoding/xml"
	"regexp"
	"sort"
	"strconv"
	"time"
)

var rootRawPattern = regexp.MustCompile(`(?s)<Root[^>]*>.*?</Root>|<Root>.*?</Root>`)
var memberRawPattern = regexp.MustCompile(`(?s)<Member[^>]*>.*?</Member>|<Member>.*?</Member>`)

const (
	rootHeaderChainFirst    = 127
	rootHeaderChainFallback = 214
	memberHeaderChainFirst  = 119
	encryptedSentinel       = 0xFF
)

// DecodeXmlBlocks is pass 5: the XML Decoder.
func DecodeXmlBlocks(buf []byte, fragments []DecompressedFragment, timeout time.Duration, log Logger) []XmlBlock {
	var blocks []XmlBlock
	sink := &FaultSink{}

	if matches, ok := boundedFindAll(rootRawPattern, buf, timeout); ok {
		for _, m := range matches {
			if xb, ok := decodeRootPayload(buf[m[0]:m[1]], m[0], m[1]-m[0], false, sink, log); ok {
				blocks = append(blocks, xb)
			}
		}
	} else {
		sink.Warn(log, RegexTimeout, 0, "scanning raw <Root> elements")
	}

	if matches, ok := boundedFindAll(memberRawPattern, buf, timeout); ok {
		for _, m := range matches {
			if xb, ok := decodeMemberPayload(buf[m[0]:m[1]], m[0], m[1]-m[0], false, sink, log); ok {
				blocks = append(blocks, xb)
			}
		}
	} else {
		sink.Warn(log, RegexTimeout, 0, "scanning raw <Member> elements")
	}

	for _, frag := range fragments {
		switch frag.Tag {
		case "Root":
			if xb, ok := decodeRootPayload(frag.XML, frag.ByteOffset, frag.ByteSize, true, sink, log); ok {
				recoverCompressedHeader(buf, &xb, true)
				blocks = append(blocks, xb)
			}
		case "Member":
			if xb, ok := decodeMemberPayload(frag.XML, frag.ByteOffset, frag.ByteSize, true, sink, log); ok {
				recoverCompressedHeader(buf, &xb, false)
				blocks = append(blocks, xb)
			}
		}
	}

	if len(sink.Faults) > 0 && log != nil {
		log.Debug("xml decode: %d faults skipped", len(sink.Faults))
	}

	return dedupeXmlBlocks(blocks)
}

func decodeRootPayload(xmlBytes []byte, byteOffset, byteSize int, compressed bool, sink *FaultSink, log Logger) (XmlBlock, bool) {
	var root xmlNode
	if err := xml.Unmarshal(xmlBytes, &root); err != nil {
		sink.Warn(log, MalformedXmlFragment, byteOffset, "Root: %v", err)
		return XmlBlock{}, false
	}
	r := &Root{Header: rootHeader(root)}
	if guid, ok := attr(root, "InterfaceGuid"); ok {
		r.InterfaceGuid = guid
	}
	for _, m := range root.children("Member") {
		r.Members = append(r.Members, decodeMemberItem(m))
	}
	if off, ok := root.child("Offsets"); ok {
		r.Offsets = decodeOffsets(off, true)
	}
	if ext, ok := root.child("ExtensionMemory"); ok {
		if v, ok := attr(ext, "VolatileSize"); ok {
			r.ExtensionMemVolSz, _ = strconv.Atoi(v)
		}
	}
	if ex, ok := root.child("Externals"); ok {
		r.Externals = decodeExternals(ex)
	}
	return XmlBlock{ByteOffset: byteOffset, ByteSize: byteSize, IsCompressed: compressed, IsRoot: true, Root: r}, true
}

func decodeMemberPayload(xmlBytes []byte, byteOffset, byteSize int, compressed bool, sink *FaultSink, log Logger) (XmlBlock, bool) {
	var m xmlNode
	if err := xml.Unmarshal(xmlBytes, &m); err != nil {
		sink.Warn(log, MalformedXmlFragment, byteOffset, "Member: %v", err)
		return XmlBlock{}, false
	}
	mem := &Member{Header: rootHeader(m), ParentID: "InternalSection"}
	if v, ok := attr(m, "ParentId"); ok {
		mem.ParentID = v
	}
	if off, ok := m.child("Offsets"); ok {
		mem.Offsets = decodeOffsets(off, false)
	}
	for _, mi := range m.children("Member") {
		mem.Members = append(mem.Members, decodeMemberItem(mi))
	}
	return XmlBlock{ByteOffset: byteOffset, ByteSize: byteSize, IsCompressed: compressed, IsRoot: false, Member: mem}, true
}

func rootHeader(n xmlNode) XmlElementHeader {
	h := XmlElementHeader{}
	if v, ok := attr(n, "ID"); ok {
		h.ID = v
	}
	if v, ok := attr(n, "Name"); ok {
		h.Name = v
	}
	return h
}

func attr(n xmlNode, name string) (string, bool) {
	for _, a := range n.Attrs {
		if localName(a.Name.Local) == name {
			return a.Value, true
		}
	}
	return "", false
}

func decodeMemberItem(n xmlNode) MemberItem {
	mi := MemberItem{}
	if v, ok := attr(n, "ID"); ok {
		mi.ID = v
	}
	if v, ok := attr(n, "Name"); ok {
		mi.Name = v
	}
	if v, ok := attr(n, "RID"); ok {
		mi.RID = v
	}
	if v, ok := attr(n, "Type"); ok {
		mi.DataType = v
	}
	if v, ok := attr(n, "SubPartIndex"); ok {
		mi.SubPartIndex = v
	}
	if v, ok := attr(n, "StdO"); ok {
		mi.StdO = v
	}
	if v, ok := attr(n, "LID"); ok {
		mi.LID = v
	}
	if v, ok := attr(n, "v"); ok {
		mi.V = v
	}
	for _, c := range n.children("Member") {
		mi.Children = append(mi.Children, decodeMemberItem(c))
	}
	return mi
}

func decodeOffsets(n xmlNode, withParamSize bool) Offsets {
	o := Offsets{}
	if v, ok := attr(n, "stdSize"); ok {
		o.StdSize, _ = strconv.Atoi(v)
	}
	if v, ok := attr(n, "optSize"); ok {
		o.OptSize, _ = strconv.Atoi(v)
	}
	if v, ok := attr(n, "Flags"); ok {
		o.Flags, _ = strconv.Atoi(v)
	}
	if v, ok := attr(n, "CRC"); ok {
		o.CRC, _ = strconv.Atoi(v)
	}
	if v, ok := attr(n, "volSize"); ok {
		o.VolSize, _ = strconv.Atoi(v)
	}
	if withParamSize {
		if ps, ok := n.child("ParamSize"); ok {
			p := &ParamSize{}
			if v, ok := attr(ps, "stdSize"); ok {
				p.StdSize, _ = strconv.Atoi(v)
			}
			if v, ok := attr(ps, "volSize"); ok {
				p.VolSize, _ = strconv.Atoi(v)
			}
			if v, ok := attr(ps, "volFlags"); ok {
				p.VolFlags, _ = strconv.Atoi(v)
			}
			if v, ok := attr(ps, "allFlags"); ok {
				p.AllFlags, _ = strconv.Atoi(v)
			}
			o.ParamSize = p
		}
	}
	for _, od := range n.descendants("o") {
		if v, ok := attr(od, "o"); ok {
			if val, err := strconv.Atoi(v); err == nil {
				o.O = append(o.O, val)
			}
		}
	}
	return o
}

func decodeExternals(n xmlNode) *Externals {
	ex := &Externals{}
	if v, ok := attr(n, "MultiFBCount"); ok {
		ex.MultiFBCount, _ = strconv.Atoi(v)
	}
	for _, et := range n.children("ExternalType") {
		e := ExternalType{}
		if v, ok := attr(et, "SubPartIndex"); ok {
			e.SubPartIndex, _ = strconv.Atoi(v)
		}
		if v, ok := attr(et, "Name"); ok {
			e.Type = v
		}
		if v, ok := attr(et, "BlockClass"); ok {
			e.BlockClass = v
		}
		for _, u := range et.children("Usage") {
			usage := Usage{Section: "Static"}
			if v, ok := attr(u, "Path"); ok {
				usage.Path = v
			}
			if v, ok := attr(u, "Name"); ok {
				usage.Name = v
			}
			if v, ok := attr(u, "volStart"); ok {
				usage.VolStart, _ = strconv.Atoi(v)
			}
			if v, ok := attr(u, "Section"); ok {
				usage.Section = v
			}
			e.Usages = append(e.Usages, usage)
		}
		ex.ExternalTypes = append(ex.ExternalTypes, e)
	}
	return ex
}

// children returns every direct child with the given local name (unlike
// child, which returns only the first).
func (n xmlNode) children(name string) []xmlNode {
	var out []xmlNode
	for _, c := range n.Nodes {
		if localName(c.XMLName.Local) == name {
			out = append(out, c)
		}
	}
	return out
}

// recoverCompressedHeader recovers the ID/name of a compressed <Root>/<Member>
// payload by reading the length-prefixed block data found at buffer offset
// xb.ByteSize, for the case where the decoded DOM itself carried no usable ID.
func recoverCompressedHeader(buf []byte, xb *XmlBlock, isRoot bool) {
	id := xb.ElementID()
	if id != "" {
		return
	}

	byteSize := xb.ByteSize
	lenBytes, ok := safeSlice(buf, byteSize, byteSize+2)
	if !ok {
		return
	}
	blockDataLen := int(binary.LittleEndian.Uint16(lenBytes))
	blockData, ok := safeSlice(buf, byteSize+2, byteSize+2+blockDataLen)
	if !ok {
		return
	}

	var sm []byte
	if isRoot {
		if m := rootHeaderPattern.Find(blockData); m != nil {
			sm = m
		}
	} else {
		if m := memberHeaderPattern.Find(blockData); m != nil {
			sm = m
		}
	}
	if sm == nil {
		recoverChainedHeader(buf, xb, isRoot)
		return
	}
	applyRecoveredHeader(xb, sm, isRoot)
}

// recoverChainedHeader handles payloads whose block data doesn't carry the
// header directly. It checks for the encrypted sentinel byte at a fixed
// position (ByteOffset+127+214 for roots, ByteSize+ByteOffset+119 for
// members) and, if present, searches the 256 bytes from there for the
// header. It does not follow any length-prefixed indirection.
func recoverChainedHeader(buf []byte, xb *XmlBlock, isRoot bool) {
	initialOffset := xb.ByteOffset
	var offsetData1, offsetData2 int
	if isRoot {
		offsetData1, offsetData2 = rootHeaderChainFirst, rootHeaderChainFallback
	} else {
		offsetData1 = memberHeaderChainFirst
	}

	var sentinelPos int
	if isRoot {
		sentinelPos = initialOffset + offsetData1 + offsetData2
	} else {
		sentinelPos = xb.ByteSize + initialOffset + offsetData1
	}
	sentinel, ok := safeByte(buf, sentinelPos)
	if !ok || sentinel != encryptedSentinel {
		return
	}

	blockData, ok := safeSlice(buf, sentinelPos, sentinelPos+256)
	if !ok {
		return
	}
	var sm []byte
	if isRoot {
		sm = rootHeaderPattern.Find(blockData)
	} else {
		sm = memberHeaderPattern.Find(blockData)
	}
	if sm == nil {
		return
	}
	applyRecoveredHeader(xb, sm, isRoot)
}

func applyRecoveredHeader(xb *XmlBlock, headerMatch []byte, isRoot bool) {
	sm := innerScopeGuidPattern.FindSubmatch(headerMatch)
	if sm == nil {
		return
	}
	guid := string(sm[2])
	if isRoot && xb.Root != nil {
		xb.Root.Header.ID = guid
	} else if !isRoot && xb.Member != nil {
		xb.Member.Header.ID = guid
	}
}

func dedupeXmlBlocks(blocks []XmlBlock) []XmlBlock {
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].ByteOffset < blocks[j].ByteOffset })
	byID := map[string]XmlBlock{}
	var order []string
	for _, xb := range blocks {
		id := xb.ElementID()
		if id == "" {
			continue
		}
		if _, seen := byID[id]; !seen {
			order = append(order, id)
		}
		byID[id] = xb // ascending offset order means the latest overwrite wins
	}
	out := make([]XmlBlock, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}
