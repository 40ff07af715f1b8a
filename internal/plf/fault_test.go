package plf

import "testing"

func TestFaultKindStringNamesAllConstants(t *testing.T) {
	cases := map[FaultKind]string{
		MalformedZlibStream:  "MalformedZlibStream",
		MalformedXmlFragment: "MalformedXmlFragment",
		TokenizationMismatch: "TokenizationMismatch",
		UnparseableAddress:   "UnparseableAddress",
		UnclassifiedBlock:    "UnclassifiedBlock",
		UnmatchedElement:     "UnmatchedElement",
		FormatViolation:      "FormatViolation",
		RegexTimeout:         "RegexTimeout",
		FaultKind(99):        "Unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("FaultKind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}

func TestFaultErrorFormatsOffsetAsHex(t *testing.T) {
	f := Fault{Kind: UnparseableAddress, ByteOffset: 0x2a, Detail: "bad token"}
	want := "UnparseableAddress at 0x2a: bad token"
	if got := f.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestFaultSinkReportAppendsAndInvokesCallback(t *testing.T) {
	var sink FaultSink
	var logged []Fault

	sink.Report(RegexTimeout, 10, "scan exceeded budget", func(f Fault) {
		logged = append(logged, f)
	})

	if len(sink.Faults) != 1 {
		t.Fatalf("Faults = %d, want 1", len(sink.Faults))
	}
	if len(logged) != 1 || logged[0].Kind != RegexTimeout {
		t.Fatalf("callback did not receive the reported fault: %+v", logged)
	}
}

func TestFaultSinkReportToleratesNilCallback(t *testing.T) {
	var sink FaultSink
	sink.Report(FormatViolation, 0, "no callback", nil)
	if len(sink.Faults) != 1 {
		t.Fatalf("Faults = %d, want 1", len(sink.Faults))
	}
}
