package plf

import (
	"regexp"
	"sort"
	"time"
)

var rootHeaderPattern = regexp.MustCompile(`BIVE:(.*?)/`)
var memberHeaderPattern = regexp.MustCompile(`BI:(.*?)/`)
var innerScopeGuidPattern = regexp.MustCompile(`([A-Za-z0-9]+):.*?/([A-Za-z0-9\-]{36})`)

var occurrencePrefixKind = map[string]BlockKind{
	"DT": KindUDT,
	"FB": KindFB,
	"DB": KindDB,
	"OB": KindOB,
	"FC": KindFC,
}

// ExtractElementBlocks is pass 4: the Element-Block Extractor & Linker.
func ExtractElementBlocks(buf []byte, timeout time.Duration, rawBlocks []RawBlock, refBlocks []ReferenceBlock, xmlBlocks []XmlBlock, log Logger) []ElementBlock {
	sink := &FaultSink{}
	var elements []ElementBlock
	elements = append(elements, scanRootHeaders(buf, timeout, sink, log)...)
	elements = append(elements, scanMemberHeaders(buf, timeout, sink, log)...)

	for i := range elements {
		classifyOccurrence(buf, &elements[i], rawBlocks, sink, log)
	}

	elements = dedupeElements(elements)

	linkRawBlocks(elements, rawBlocks)
	linkReferenceBlocks(elements, refBlocks, log)
	linkXmlBlocks(elements, xmlBlocks)

	if len(sink.Faults) > 0 && log != nil {
		log.Debug("element extraction: %d faults skipped", len(sink.Faults))
	}

	return elements
}

func scanRootHeaders(buf []byte, timeout time.Duration, sink *FaultSink, log Logger) []ElementBlock {
	var out []ElementBlock
	matches, ok := boundedFindAllSubmatchIndex(rootHeaderPattern, buf, timeout)
	if !ok {
		sink.Warn(log, RegexTimeout, 0, "scanning BIVE: headers")
		return out
	}
	for _, m := range matches {
		match := m[0]
		size, ok := safeByte(buf, match-1)
		if !ok {
			continue
		}
		if size == 95 {
			if alt, ok2 := safeByte(buf, match-2); ok2 {
				size = alt
			}
		}
		blockData, ok := safeSlice(buf, match, match+int(size))
		if !ok {
			sink.Warn(log, TokenizationMismatch, match, "BIVE header out of range")
			continue
		}

		sm := innerScopeGuidPattern.FindSubmatch(blockData)
		if sm == nil {
			continue
		}
		guid := string(sm[2])
		name := string(buf[m[2]:m[3]])

		for _, occ := range findAll(buf, []byte(name)) {
			out = append(out, ElementBlock{
				Kind:            ElementRoot,
				ID:              guid,
				Name:            name,
				BlockByteOffset: occ,
				DataByteOffset:  match,
			})
		}
	}
	return out
}

func scanMemberHeaders(buf []byte, timeout time.Duration, sink *FaultSink, log Logger) []ElementBlock {
	var out []ElementBlock
	matches, ok := boundedFindAllSubmatchIndex(memberHeaderPattern, buf, timeout)
	if !ok {
		sink.Warn(log, RegexTimeout, 0, "scanning BI: headers")
		return out
	}
	for _, m := range matches {
		match := m[0]
		// This 16-bit LE size read deliberately overlaps the matched "BI:"
		// prefix by one byte; the container writes the field that way.
		sizeBytes, ok := safeSlice(buf, match-1, match+1)
		if !ok {
			continue
		}
		size := int(sizeBytes[0]) | int(sizeBytes[1])<<8

		blockData, ok := safeSlice(buf, match, match+size)
		if !ok {
			sink.Warn(log, TokenizationMismatch, match, "BI header out of range")
			continue
		}

		sm := innerScopeGuidPattern.FindSubmatch(blockData)
		if sm == nil {
			continue
		}
		scope := string(sm[1])
		guid := string(sm[2])
		if scope == "Values" {
			scope = ""
		}
		id := guid
		if scope != "" {
			id = scope + ":" + guid
		}
		name := string(buf[m[2]:m[3]])

		for _, occ := range findAll(buf, []byte(name)) {
			out = append(out, ElementBlock{
				Kind:            ElementMember,
				ID:              id,
				Name:            name,
				BlockByteOffset: occ,
				DataByteOffset:  match,
			})
		}
	}
	return out
}

// classifyOccurrence assigns a block kind to a single header occurrence: the
// two prefix bytes at offsets -3 and -2 from the occurrence first (the byte
// directly before it is skipped), then a fallback scan
// of the raw block names for one that embeds this element's name as a
// length-prefixed substring.
func classifyOccurrence(buf []byte, el *ElementBlock, rawBlocks []RawBlock, sink *FaultSink, log Logger) {
	if prefix, ok := safeSlice(buf, el.BlockByteOffset-3, el.BlockByteOffset-1); ok {
		if kind, ok := occurrencePrefixKind[string(prefix)]; ok {
			el.BlockKind = kind
			return
		}
	}

	for _, rb := range rawBlocks {
		idx := indexOf([]byte(rb.Name), el.Name)
		if idx < 0 {
			continue
		}
		if idx == 0 {
			continue
		}
		if int(rb.Name[idx-1]) == len(el.Name)+1 {
			el.BlockKind = rb.Kind
			return
		}
	}

	el.BlockKind = KindUndefined
	el.BlockByteOffset = 0
	sink.Warn(log, UnclassifiedBlock, 0, "element %s", el.Name)
}

func dedupeElements(elements []ElementBlock) []ElementBlock {
	sort.Slice(elements, func(i, j int) bool { return elements[i].DataByteOffset < elements[j].DataByteOffset })
	byID := map[string]ElementBlock{}
	var order []string
	for _, el := range elements {
		if _, seen := byID[el.ID]; !seen {
			order = append(order, el.ID)
		}
		byID[el.ID] = el // latest (highest data_byte_offset) wins, since sorted ascending
	}
	out := make([]ElementBlock, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

func linkRawBlocks(elements []ElementBlock, rawBlocks []RawBlock) {
	for j := range rawBlocks {
		rb := &rawBlocks[j]
		if rb.Kind != KindDB {
			continue
		}
		for i := range elements {
			if elements[i].Name != rb.Name {
				continue
			}
			if rb.AddressRecord != nil {
				elements[i].Address = int64(rb.AddressRecord.ReferenceAddress)
			}
			elements[i].RawBlock = rb
			break
		}
	}
}

func linkReferenceBlocks(elements []ElementBlock, refBlocks []ReferenceBlock, log Logger) {
	for i := range elements {
		idName := elements[i].Name
		if elements[i].RawBlock != nil {
			idName = elements[i].RawBlock.Name
		}

		var matched *InstanceRecord
		var matchedBlockName string
		for bi := range refBlocks {
			for ii := range refBlocks[bi].Instances {
				inst := &refBlocks[bi].Instances[ii]
				if inst.Name == idName {
					matched = inst
					matchedBlockName = refBlocks[bi].BlockName
					break
				}
			}
			if matched != nil {
				break
			}
		}

		if matched == nil {
			elements[i].ReferenceBlock = elements[i].Name
			continue
		}

		if int64(matched.Address) == elements[i].Address {
			elements[i].ReferenceBlock = matchedBlockName
			continue
		}

		if log != nil {
			log.Debug("reference address override for %s: %d -> %d", elements[i].Name, elements[i].Address, matched.Address)
		}
		elements[i].Address = int64(matched.Address)
		elements[i].ReferenceBlock = matchedBlockName
	}
}

func linkXmlBlocks(elements []ElementBlock, xmlBlocks []XmlBlock) {
	byID := map[string]*XmlBlock{}
	for i := range xmlBlocks {
		byID[xmlBlocks[i].ElementID()] = &xmlBlocks[i]
	}
	for i := range elements {
		if xb, ok := byID[elements[i].ID]; ok {
			elements[i].XML = xb
		}
	}
}
