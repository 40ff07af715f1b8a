package plf

import (
	"encoding/xml"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// identXmlPartPattern finds raw <IdentXmlPart ...>...</IdentXmlPart> spans in
// the ASCII view of the buffer, the container's plain-text carrier for
// instance-reference records outside the compressed fragments.
var identXmlPartPattern = regexp.MustCompile(`(?s)<IdentXmlPart[^>]*>.*?</IdentXmlPart>`)

// xmlNode is a generic, schema-agnostic XML tree used to walk IdentXmlPart
// fragments without hand-writing a struct per Siemens namespace.
type xmlNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Content string     `xml:",chardata"`
	Nodes   []xmlNode  `xml:",any"`
}

func localName(full string) string {
	if i := strings.LastIndexByte(full, ':'); i >= 0 {
		return full[i+1:]
	}
	return full
}

func (n xmlNode) child(name string) (xmlNode, bool) {
	for _, c := range n.Nodes {
		if localName(c.XMLName.Local) == name {
			return c, true
		}
	}
	return xmlNode{}, false
}

func (n xmlNode) descendants(name string) []xmlNode {
	var out []xmlNode
	var walk func(xmlNode)
	walk = func(cur xmlNode) {
		if localName(cur.XMLName.Local) == name {
			out = append(out, cur)
		}
		for _, c := range cur.Nodes {
			walk(c)
		}
	}
	for _, c := range n.Nodes {
		walk(c)
	}
	return out
}

// path walks a sequence of child element names, one per argument, returning
// the final node's text content.
func (n xmlNode) path(segments ...string) (string, bool) {
	cur := n
	for _, seg := range segments {
		next, ok := cur.child(seg)
		if !ok {
			return "", false
		}
		cur = next
	}
	return strings.TrimSpace(cur.Content), true
}

// pathAny is path but the final segment is a list of alternative names,
// e.g. ID/CS/C/{NID|UID|AK}, since different record variants spell the
// same field differently.
func (n xmlNode) pathAny(prefix []string, alternatives ...string) (string, bool) {
	cur := n
	for _, seg := range prefix {
		next, ok := cur.child(seg)
		if !ok {
			return "", false
		}
		cur = next
	}
	for _, alt := range alternatives {
		if leaf, ok := cur.child(alt); ok {
			return strings.TrimSpace(leaf.Content), true
		}
	}
	return "", false
}

// ResolveReferenceBlocks is pass 2: the Reference-Block Resolver.
func ResolveReferenceBlocks(buf []byte, fragments []DecompressedFragment, timeout time.Duration, log Logger) []ReferenceBlock {
	groups := map[string]*ReferenceBlock{}
	sink := &FaultSink{}

	matches, ok := boundedFindAll(identXmlPartPattern, buf, timeout)
	if !ok {
		sink.Warn(log, RegexTimeout, 0, "scanning for IdentXmlPart fragments")
	}
	for _, m := range matches {
		span := buf[m[0]:m[1]]
		if !strings.Contains(string(span), "DBBlock") {
			continue
		}
		collectInstances(span, m[0], groups, sink, log)
	}

	for _, frag := range fragments {
		if frag.Tag != "IdentXmlPart" {
			continue
		}
		collectInstances(frag.XML, frag.ByteOffset, groups, sink, log)
	}

	blocks := make([]ReferenceBlock, 0, len(groups))
	for _, rb := range groups {
		dedupeInstances(rb)
		blocks = append(blocks, *rb)
	}
	sort.Slice(blocks, func(i, j int) bool {
		return firstAddress(blocks[i]) < firstAddress(blocks[j])
	})

	if len(sink.Faults) > 0 && log != nil {
		log.Debug("reference resolution: %d faults skipped", len(sink.Faults))
	}

	return blocks
}

func firstAddress(rb ReferenceBlock) int32 {
	if len(rb.Instances) == 0 {
		return 0
	}
	return rb.Instances[0].Address
}

func dedupeInstances(rb *ReferenceBlock) {
	byAddr := map[int32]InstanceRecord{}
	for _, inst := range rb.Instances {
		byAddr[inst.Address] = inst // latest wins
	}
	out := make([]InstanceRecord, 0, len(byAddr))
	for _, inst := range byAddr {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	rb.Instances = out
}

func collectInstances(xmlSpan []byte, byteOffset int, groups map[string]*ReferenceBlock, sink *FaultSink, log Logger) {
	var root xmlNode
	if err := xml.Unmarshal(xmlSpan, &root); err != nil {
		sink.Warn(log, MalformedXmlFragment, byteOffset, "IdentXmlPart: %v", err)
		return
	}

	for _, elemName := range []string{"AufDBBlock", "DepDBBlock"} {
		for _, node := range root.descendants(elemName) {
			inst, kind, detail := buildInstanceRecord(node, byteOffset)
			if detail != "" {
				sink.Warn(log, kind, byteOffset, "%s", detail)
				continue
			}
			rb, ok := groups[inst.TRKG]
			if !ok {
				rb = &ReferenceBlock{TRKG: inst.TRKG, BlockName: inst.Name, KindLabel: inst.KindLabel}
				groups[inst.TRKG] = rb
			}
			rb.Instances = append(rb.Instances, inst)
		}
	}
}

func buildInstanceRecord(node xmlNode, byteOffset int) (InstanceRecord, FaultKind, string) {
	props := map[string]string{}
	get := func(key string, segments ...string) {
		if v, ok := node.path(segments...); ok {
			props[key] = v
		}
	}
	get("ID/N", "ID", "N")
	get("ID/S", "ID", "S")
	get("ID/RID", "ID", "RID")
	get("ID/IS", "ID", "IS")
	if v, ok := node.pathAny([]string{"ID", "CS", "C"}, "NID", "UID", "AK"); ok {
		props["ID/CS/C"] = v
	}
	get("OD/DTR", "OD", "DTR")
	get("OD/S", "OD", "S")
	odtdt, hasType := node.path("OD", "TD", "T")
	get("TOD/N", "TOD", "N")
	get("TOD/SM", "TOD", "SM")
	get("TOD/BT", "TOD", "BT")
	get("TOD/CID", "TOD", "CID")
	get("TOD/TRKG", "TOD", "TRKG")
	get("DBBD/IM", "DBBD", "IM")
	get("DBBD/NR", "DBBD", "NR")

	if !hasType {
		return InstanceRecord{}, FormatViolation, "missing OD/TD/T"
	}
	parts := strings.SplitN(odtdt, ":", -1)
	if len(parts) != 3 {
		return InstanceRecord{}, FormatViolation, "OD/TD/T not three-component: " + odtdt
	}

	addrStr, hasAddr := node.path("TOD", "N")
	var address int32
	if hasAddr {
		if n, err := strconv.ParseInt(addrStr, 10, 32); err == nil {
			address = int32(n)
		} else {
			return InstanceRecord{}, UnparseableAddress, "TOD/N=" + addrStr
		}
	}

	trkg, _ := node.path("TOD", "TRKG")

	return InstanceRecord{
		TRKG:       trkg,
		Name:       parts[2],
		KindLabel:  parts[0],
		BlockID:    parts[1],
		Address:    address,
		ByteOffset: byteOffset,
		Properties: props,
	}, 0, ""
}
