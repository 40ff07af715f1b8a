package plf

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/xml"
	"io"
	"time"
)

// zlibMagic is the two-byte zlib default-compression header.
var zlibMagic = []byte{0x78, 0x5E}

const bom = "\xEF\xBB\xBF"

// ExtractFragments is pass 1: the Compressed-Fragment Extractor.
func ExtractFragments(buf []byte, timeout time.Duration, log Logger) []DecompressedFragment {
	var out []DecompressedFragment
	sink := &FaultSink{}

	positions := findAll(buf, zlibMagic)
	for _, p := range positions {
		frag, ok := tryExtractFragment(buf, p, timeout, sink, log)
		if ok {
			out = append(out, frag)
		}
	}
	if len(sink.Faults) > 0 && log != nil {
		log.Debug("fragment extraction: %d faults skipped", len(sink.Faults))
	}
	return out
}

// findAll returns every offset in buf where marker occurs.
func findAll(buf, marker []byte) []int {
	var positions []int
	from := 0
	for {
		idx := bytes.Index(buf[from:], marker)
		if idx < 0 {
			break
		}
		positions = append(positions, from+idx)
		from += idx + 1
	}
	return positions
}

func tryExtractFragment(buf []byte, p int, timeout time.Duration, sink *FaultSink, log Logger) (DecompressedFragment, bool) {
	probeEnd := p + 250
	if probeEnd > len(buf) {
		probeEnd = len(buf)
	}
	probeOut, ok := probeDecompress(buf[p:probeEnd])
	if !ok {
		return DecompressedFragment{}, false
	}

	tag, interesting := classifyProbe(probeOut)
	if !interesting {
		return DecompressedFragment{}, false
	}

	if p < 2 {
		return DecompressedFragment{}, false
	}
	blockSize := int(binary.LittleEndian.Uint16(buf[p-2 : p]))
	end := p + blockSize
	if end > len(buf) || blockSize <= 0 {
		sink.Warn(log, FormatViolation, p, "compressed fragment: block_size %d out of range", blockSize)
		return DecompressedFragment{}, false
	}

	decoded, err := decompressExact(buf[p:end])
	if err != nil {
		sink.Warn(log, MalformedZlibStream, p, "%v", err)
		return DecompressedFragment{}, false
	}

	if len(decoded) == 4096 {
		decoded = collectPartialSegments(buf, p, blockSize, decoded, sink, log)
	}

	cleaned := stripBOMAndZeros(decoded)
	if err := wellFormedXML(cleaned); err != nil {
		// Retry once against the unbounded tail.
		retryOut, rerr := decompressExact(buf[p:])
		if rerr != nil {
			sink.Warn(log, MalformedXmlFragment, p, "%v", err)
			return DecompressedFragment{}, false
		}
		retryCleaned := stripBOMAndZeros(retryOut)
		if verr := wellFormedXML(retryCleaned); verr != nil {
			sink.Warn(log, MalformedXmlFragment, p, "retry failed: %v", verr)
			return DecompressedFragment{}, false
		}
		cleaned = retryCleaned
	}

	return DecompressedFragment{
		Tag:        tag,
		XML:        cleaned,
		ByteOffset: p,
		ByteSize:   blockSize,
	}, true
}

// collectPartialSegments handles the container's partial-extraction rule: a
// 4096-byte decompression is a segment; subsequent zlib markers within the
// buffer produce further block_size-length windows until one under 4096
// bytes is produced.
func collectPartialSegments(buf []byte, p, blockSize int, first []byte, sink *FaultSink, log Logger) []byte {
	acc := append([]byte(nil), first...)
	search := p + 1
	for {
		rel := bytes.Index(buf[search:], zlibMagic)
		if rel < 0 {
			break
		}
		next := search + rel
		end := next + blockSize
		if end > len(buf) {
			break
		}
		seg, err := decompressExact(buf[next:end])
		if err != nil {
			sink.Warn(log, MalformedZlibStream, next, "partial fragment segment: %v", err)
			break
		}
		acc = append(acc, seg...)
		if len(seg) < 4096 {
			break
		}
		search = next + 1
	}
	return acc
}

func probeDecompress(window []byte) ([]byte, bool) {
	r, err := zlib.NewReader(bytes.NewReader(window))
	if err != nil {
		return nil, false
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil && len(out) == 0 {
		return nil, false
	}
	return out, true
}

func decompressExact(window []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(window))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return out, nil
}

func stripBOMAndZeros(b []byte) []byte {
	b = bytes.TrimPrefix(b, []byte(bom))
	return bytes.ReplaceAll(b, []byte{0}, nil)
}

// wellFormedXML reports whether b tokenizes cleanly to EOF.
func wellFormedXML(b []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(b))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// classifyProbe checks whether decompressed probe output begins with a BOM
// followed by an opening tag we care about.
func classifyProbe(probe []byte) (tag string, interesting bool) {
	if !bytes.HasPrefix(probe, []byte(bom)) {
		return "", false
	}
	s := string(probe[len(bom):])
	if len(s) == 0 || s[0] != '<' {
		return "", false
	}
	name := tagName(s)
	switch name {
	case "Member", "Root":
		return name, true
	case "IdentXmlPart":
		if bytes.Contains(probe, []byte("DBBlock")) {
			return name, true
		}
		return "", false
	default:
		return "", false
	}
}

// tagName extracts the element name following '<' up to the first
// whitespace, '/', or '>'.
func tagName(s string) string {
	if len(s) == 0 || s[0] != '<' {
		return ""
	}
	i := 1
	for i < len(s) {
		c := s[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '/' || c == '>' {
			break
		}
		i++
	}
	return s[1:i]
}
