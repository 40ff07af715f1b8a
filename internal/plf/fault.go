package plf

import "fmt"

// FaultKind enumerates the per-record failure classes a pass can hit while
// walking a malformed or truncated container. None of these abort a pass;
// each is logged at Warn with the offending byte offset and the containing
// loop moves to its next candidate record.
type FaultKind int

const (
	MalformedZlibStream FaultKind = iota
	MalformedXmlFragment
	TokenizationMismatch
	UnparseableAddress
	UnclassifiedBlock
	UnmatchedElement
	FormatViolation
	RegexTimeout
)

func (k FaultKind) String() string {
	switch k {
	case MalformedZlibStream:
		return "MalformedZlibStream"
	case MalformedXmlFragment:
		return "MalformedXmlFragment"
	case TokenizationMismatch:
		return "TokenizationMismatch"
	case UnparseableAddress:
		return "UnparseableAddress"
	case UnclassifiedBlock:
		return "UnclassifiedBlock"
	case UnmatchedElement:
		return "UnmatchedElement"
	case FormatViolation:
		return "FormatViolation"
	case RegexTimeout:
		return "RegexTimeout"
	default:
		return "Unknown"
	}
}

// Fault is a single per-record failure, always caught and logged, never
// propagated up to the caller.
type Fault struct {
	Kind       FaultKind
	ByteOffset int
	Detail     string
}

func (f Fault) Error() string {
	return fmt.Sprintf("%s at 0x%x: %s", f.Kind, f.ByteOffset, f.Detail)
}

// FaultSink collects faults raised during a pass, for logging and for tests
// that assert on which offsets were skipped.
type FaultSink struct {
	Faults []Fault
}

// Report records a fault. logf, if non-nil, is invoked so pipeline callers
// can route it into internal/logging without this package importing it.
func (s *FaultSink) Report(kind FaultKind, offset int, detail string, logf func(Fault)) {
	f := Fault{Kind: kind, ByteOffset: offset, Detail: detail}
	s.Faults = append(s.Faults, f)
	if logf != nil {
		logf(f)
	}
}

// Warn is the sink-and-log call site every pass uses for a per-record
// failure: it builds the Fault, appends it to s, and warns through log using
// the Fault's own Kind/offset formatting rather than an ad-hoc message. s may
// be nil, in which case the fault is only logged, not collected.
func (s *FaultSink) Warn(log Logger, kind FaultKind, offset int, format string, args ...interface{}) {
	detail := fmt.Sprintf(format, args...)
	report := func(f Fault) {
		if log != nil {
			log.WarnAt(f.ByteOffset, "%s", f.Error())
		}
	}
	if s != nil {
		s.Report(kind, offset, detail, report)
		return
	}
	report(Fault{Kind: kind, ByteOffset: offset, Detail: detail})
}
