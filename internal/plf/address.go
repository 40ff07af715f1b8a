package plf

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var arrayTypePattern = regexp.MustCompile(`^Array\[(\d+\.\.\d+(?:,\s*\d+\.\.\d+)*)\] of (\w+)$`)
var arrayRangePattern = regexp.MustCompile(`(\d+)\.\.(\d+)`)

// container is one outer container per element name, holding the PlcBlocks
// for every ElementBlock instance sharing that name.
type container struct {
	name    string
	address int64
	blocks  []PlcItem
}

// MaterializeAddresses is pass 6: the Address Materializer. domainTag is
// prepended to every emitted address; an empty tag falls back to "8A0E".
func MaterializeAddresses(elements []ElementBlock, referenceMaxDepth int, domainTag string, log Logger) []Address {
	if domainTag == "" {
		domainTag = "8A0E"
	}
	sink := &FaultSink{}
	byName := map[string]*container{}
	var order []string
	for i := range elements {
		el := &elements[i]
		c, ok := byName[el.Name]
		if !ok {
			c = &container{name: el.Name, address: el.Address}
			byName[el.Name] = c
			order = append(order, el.Name)
		}
		c.blocks = append(c.blocks, buildPlcBlock(el))
	}

	byBlockName := indexPlcBlocksByName(byName)

	var containers []*container
	for _, name := range order {
		containers = append(containers, byName[name])
	}
	for _, c := range containers {
		for i := range c.blocks {
			expandArrays(&c.blocks[i])
			expandReferences(&c.blocks[i], byBlockName, referenceMaxDepth, 0, sink, log)
		}
	}

	sort.SliceStable(containers, func(i, j int) bool { return containers[i].address < containers[j].address })

	var out []Address
	for _, c := range containers {
		if c.address == 0 {
			continue
		}
		out = append(out, flattenContainer(c, domainTag)...)
	}

	if len(sink.Faults) > 0 && log != nil {
		log.Debug("address materialization: %d faults skipped", len(sink.Faults))
	}

	return out
}

func buildPlcBlock(el *ElementBlock) PlcItem {
	block := PlcItem{ID: el.ID, Name: el.Name, Kind: el.BlockKind}

	if el.XML != nil && el.XML.IsRoot && el.XML.Root != nil {
		root := el.XML.Root
		if root.Externals != nil {
			for _, et := range root.Externals.ExternalTypes {
				for pos, usage := range et.Usages {
					block.Children = append(block.Children, PlcItem{
						ID:            strconv.Itoa(pos),
						Name:          usage.Name,
						AddressFrag:   usage.Path,
						Kind:          parseBlockClass(et.BlockClass),
						DataType:      "UNDEFINED",
						ReferenceName: et.Type,
					})
				}
			}
		}
		for _, mi := range root.Members {
			block.Children = append(block.Children, buildPlcItemFromMember(mi, el.BlockKind))
		}
	}

	if el.XML != nil && !el.XML.IsRoot && el.XML.Member != nil {
		for _, mi := range el.XML.Member.Members {
			block.Children = append(block.Children, buildPlcItemFromMember(mi, el.BlockKind))
		}
	}

	return block
}

func buildPlcItemFromMember(mi MemberItem, kind BlockKind) PlcItem {
	item := PlcItem{
		ID:          mi.ID,
		Name:        mi.Name,
		AddressFrag: mi.LID,
		Kind:        kind,
		DataType:    mi.DataType,
	}
	for _, c := range mi.Children {
		item.Children = append(item.Children, buildPlcItemFromMember(c, kind))
	}
	return item
}

func parseBlockClass(blockClass string) BlockKind {
	switch strings.ToUpper(blockClass) {
	case "UDT":
		return KindUDT
	case "FB":
		return KindFB
	case "FC":
		return KindFC
	case "OB":
		return KindOB
	case "DB":
		return KindDB
	default:
		return KindUndefined
	}
}

// indexPlcBlocksByName maps a block name to one representative PlcBlock built
// for it, so an item referencing that name by type can find its member list.
func indexPlcBlocksByName(byName map[string]*container) map[string]*PlcItem {
	idx := map[string]*PlcItem{}
	for name, c := range byName {
		if len(c.blocks) > 0 {
			idx[name] = &c.blocks[0]
		}
	}
	return idx
}

// expandArrays turns an "Array[a..b] of T" data type into one child item
// per index, each carrying the array element's own address fragment.
func expandArrays(item *PlcItem) {
	if m := arrayTypePattern.FindStringSubmatch(item.DataType); m != nil {
		for _, rangeMatch := range arrayRangePattern.FindAllStringSubmatch(m[1], -1) {
			a, _ := strconv.Atoi(rangeMatch[1])
			b, _ := strconv.Atoi(rangeMatch[2])
			for i := a; i <= b; i++ {
				item.Children = append(item.Children, PlcItem{
					Name:        fmt.Sprintf("%s[%d]", item.Name, i),
					AddressFrag: strconv.Itoa(i),
					Kind:        item.Kind,
					DataType:    m[2],
				})
			}
		}
	}
	for i := range item.Children {
		expandArrays(&item.Children[i])
	}
}

// expandReferences copies the referenced block's children onto item whenever
// item names another block by type, bounded to maxDepth to guard against
// reference cycles.
func expandReferences(item *PlcItem, byBlockName map[string]*PlcItem, maxDepth, depth int, sink *FaultSink, log Logger) {
	if item.ReferenceName != "" {
		if depth >= maxDepth {
			sink.Warn(log, FormatViolation, 0, "reference expansion truncated at depth %d for %s", maxDepth, item.Name)
		} else if target, ok := byBlockName[item.ReferenceName]; ok {
			for _, child := range target.Children {
				copied := copyPlcItem(child)
				expandReferences(&copied, byBlockName, maxDepth, depth+1, sink, log)
				item.Children = append(item.Children, copied)
			}
		}
	}
	for i := range item.Children {
		expandReferences(&item.Children[i], byBlockName, maxDepth, depth, sink, log)
	}
}

func copyPlcItem(item PlcItem) PlcItem {
	cp := item
	cp.Children = make([]PlcItem, len(item.Children))
	for i, c := range item.Children {
		cp.Children[i] = copyPlcItem(c)
	}
	return cp
}

// flattenContainer walks a container depth-first, emitting one Address per
// reachable member with its dotted name and formatted reference address.
func flattenContainer(c *container, domainTag string) []Address {
	var out []Address
	root := Address{Name: c.name, ReferenceAddress: formatAddress(strconv.FormatInt(c.address, 10), domainTag)}
	out = append(out, root)
	for _, block := range c.blocks {
		out = append(out, flattenItems(block.Children, c.name, strconv.FormatInt(c.address, 10), domainTag)...)
	}
	return out
}

func flattenItems(items []PlcItem, parentName, parentAddr, domainTag string) []Address {
	var out []Address
	for _, item := range items {
		if item.AddressFrag == "" {
			continue
		}
		name := parentName + "." + item.Name
		// Array elements are named "<parent>[i]"; attach them to the parent's
		// own segment ("FOO.field[0]") rather than nesting ("FOO.field.field[0]").
		lastDot := strings.LastIndexByte(parentName, '.')
		if strings.HasPrefix(item.Name, parentName[lastDot+1:]+"[") {
			name = parentName[:lastDot+1] + item.Name
		}
		addr := parentAddr + "." + item.AddressFrag
		out = append(out, Address{Name: name, ReferenceAddress: formatAddress(addr, domainTag)})
		out = append(out, flattenItems(item.Children, name, addr, domainTag)...)
	}
	return out
}

// formatAddress splits a dot-joined decimal address, converts each numeric
// segment to upper-case hex, leaves non-numeric segments as-is, and prepends
// the domain tag.
func formatAddress(dotted, domainTag string) string {
	segments := strings.Split(dotted, ".")
	for i, seg := range segments {
		if n, err := strconv.ParseInt(seg, 10, 64); err == nil {
			segments[i] = strconv.FormatInt(n, 16)
			segments[i] = strings.ToUpper(segments[i])
		}
	}
	return domainTag + strings.Join(segments, ".")
}
