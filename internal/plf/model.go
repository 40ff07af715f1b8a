// Package plf implements the reverse-engineered TIA Portal .plf container
// parser: five scanning passes plus a materializer, walking one immutable
// byte buffer into a stream of symbolic-name/reference-address pairs.
package plf

// BlockKind classifies a PLC block category recovered from raw bytes.
type BlockKind int

const (
	KindUndefined BlockKind = iota
	KindUDT
	KindFB
	KindFC
	KindOB
	KindDB
)

func (k BlockKind) String() string {
	switch k {
	case KindUDT:
		return "UDT"
	case KindFB:
		return "FB"
	case KindFC:
		return "FC"
	case KindOB:
		return "OB"
	case KindDB:
		return "DB"
	default:
		return "UNDEFINED"
	}
}

// CompressedBlob is an inline zlib payload discovered alongside an
// AddressRecord or PLUSBLOCK record, decompressed opportunistically.
type CompressedBlob struct {
	ByteOffset int
	ByteSize   int
	Data       []byte // decompressed; nil if decompression failed
}

// AddressRecord is a %DB-prefixed address token or PLUSBLOCK record carrying
// a 16-bit reference address.
type AddressRecord struct {
	Name             string
	Token            string
	ReferenceAddress uint16
	ByteOffset       int
	Blob             *CompressedBlob
}

// RawBlock is a block-header/name marker found directly in raw bytes.
type RawBlock struct {
	Kind          BlockKind
	Name          string
	ByteOffset    int
	AddressRecord *AddressRecord
}

// InstanceRecord is one AufDBBlock/DepDBBlock XML element under a
// ReferenceBlock, tracked by a shared TRKG key.
type InstanceRecord struct {
	TRKG       string
	Name       string // OD/TD/T third component
	KindLabel  string // OD/TD/T first component
	BlockID    string // OD/TD/T second component
	Address    int32  // parsed TOD/N
	ByteOffset int

	Properties map[string]string
}

// ReferenceBlock groups InstanceRecords sharing a TRKG tracking key.
type ReferenceBlock struct {
	TRKG      string
	BlockName string
	KindLabel string
	Instances []InstanceRecord
}

// ElementKind distinguishes Root header elements (BIVE:) from Member header
// elements (BI:).
type ElementKind int

const (
	ElementRoot ElementKind = iota
	ElementMember
)

// ElementBlock is a cross-linked BIVE:/BI: header occurrence.
type ElementBlock struct {
	Kind ElementKind
	ID   string
	Name string

	BlockKind       BlockKind
	BlockByteOffset int
	DataByteOffset  int
	Address         int64

	RawBlock       *RawBlock
	ReferenceBlock string // ReferenceBlock.BlockName this element links to
	XML            *XmlBlock
}

// Offsets mirrors the <Offsets> XML element.
type Offsets struct {
	StdSize   int
	OptSize   int
	Flags     int
	CRC       int
	VolSize   int
	ParamSize *ParamSize
	O         []int
}

// ParamSize mirrors the nested <ParamSize> XML element, attached to its
// containing Offsets rather than tracked as a separate top-level record.
type ParamSize struct {
	StdSize   int
	VolSize   int
	VolFlags  int
	AllFlags  int
}

// Usage mirrors an <Usage> element under an ExternalType.
type Usage struct {
	Path    string
	Name    string
	VolStart int
	Section string // default "Static"
}

// ExternalType mirrors an <ExternalType> element under <Externals>.
type ExternalType struct {
	SubPartIndex int
	Type         string // the "Name" attribute, which is the referenced type name
	BlockClass   string
	Usages       []Usage
}

// Externals mirrors the <Externals> element of a Root.
type Externals struct {
	MultiFBCount  int
	ExternalTypes []ExternalType
}

// MemberItem mirrors a <Member> node inside a Root's or Member's XML tree,
// recursively nested.
type MemberItem struct {
	ID            string
	Name          string
	RID           string
	LID           string
	StdO          string
	V             string
	SubPartIndex  string
	DataType      string
	Children      []MemberItem
}

// XmlElementHeader is the header shared by Root and Member payloads.
type XmlElementHeader struct {
	ID   string
	Name string
}

// Root is the DOM mapping of a <Root> XML tree.
type Root struct {
	Header            XmlElementHeader
	InterfaceGuid     string
	Members           []MemberItem
	Offsets           Offsets
	ExtensionMemVolSz int
	Externals         *Externals
}

// Member is the DOM mapping of a <Member> XML tree.
type Member struct {
	Header   XmlElementHeader
	ParentID string // "InternalSection" if absent
	Offsets  Offsets
	Members  []MemberItem
}

// XmlBlock is a decoded <Root>/<Member> tree with its container element
// header, found either raw in the buffer or inside a DecompressedFragment.
type XmlBlock struct {
	ByteOffset  int
	ByteSize    int
	IsCompressed bool

	IsRoot bool
	Root   *Root
	Member *Member
}

// ElementID returns the id the payload's header claims, for dedup and
// cross-linking: when the same ID recurs, the highest-offset occurrence wins.
func (x *XmlBlock) ElementID() string {
	if x.IsRoot && x.Root != nil {
		return x.Root.Header.ID
	}
	if !x.IsRoot && x.Member != nil {
		return x.Member.Header.ID
	}
	return ""
}

// DecompressedFragment is the output of pass 1, the compressed-fragment
// extractor.
type DecompressedFragment struct {
	Tag        string // "Member", "Root", or "IdentXmlPart"
	XML        []byte // decompressed, BOM-stripped, zero-stripped
	ByteOffset int
	ByteSize   int
}

// PlcItemKind is an alias of BlockKind used for materialized items; an
// externals "BlockClass" string that maps onto none of {UDT,FB,FC,OB,DB}
// becomes KindUndefined.
type PlcItemKind = BlockKind

// PlcItem is a node in the address tree built by pass 6, the address
// materializer.
type PlcItem struct {
	ID            string
	Name          string
	AddressFrag   string // LID, array index, or Usage.Path fragment
	Kind          PlcItemKind
	DataType      string
	ReferenceName string
	Children      []PlcItem
}

// Address is a final flattened output pair: a symbolic name and its
// formatted reference address.
type Address struct {
	Name             string
	ReferenceAddress string
}
