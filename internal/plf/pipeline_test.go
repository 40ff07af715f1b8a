package plf

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRunReadsInputAndProducesAddresses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.plf")
	buf := append([]byte("DB!"), 1, 4)
	buf = append(buf, []byte("DB12")...)
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatalf("write sample: %v", err)
	}

	result, err := Run(PipelineOptions{
		InputPath:         path,
		RegexTimeout:      time.Second,
		ReferenceMaxDepth: 32,
	}, nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.RawBlockCount != 1 {
		t.Fatalf("expected 1 raw block from the DB! header, got %d", result.RawBlockCount)
	}
}

func TestRunPropagatesReadError(t *testing.T) {
	_, err := Run(PipelineOptions{InputPath: filepath.Join(t.TempDir(), "missing.plf")}, nil)
	if err == nil {
		t.Fatalf("expected an error for a missing input file")
	}
}

func TestBackfillUnlinkedElementsBorrowsDonorXML(t *testing.T) {
	donorXML := &XmlBlock{IsRoot: true, Root: &Root{Header: XmlElementHeader{ID: "g1"}}}
	elements := []ElementBlock{
		{Name: "Donor", XML: donorXML},
		{Name: "Borrower", ReferenceBlock: "Donor"},
	}
	backfillUnlinkedElements(elements, nil)
	if elements[1].XML != donorXML {
		t.Fatalf("expected the borrower to inherit the donor's XML")
	}
}
