package plf

import (
	"fmt"
	"os"
	"time"

	"github.com/RafaelBenildoMafra/Tia-Parser/internal/progress"
)

// PipelineOptions configures a single extraction run.
type PipelineOptions struct {
	InputPath         string
	RegexTimeout      time.Duration
	ReferenceMaxDepth int
	DomainTag         string
	ShowProgress      bool
}

// Result is the outcome of running the six-pass pipeline once.
type Result struct {
	Addresses []Address

	FragmentCount       int
	ReferenceBlockCount int
	RawBlockCount       int
	AddressRecordCount  int
	ElementBlockCount   int
	XmlBlockCount       int
}

// Run reads opts.InputPath and sequences all six passes over the buffer.
func Run(opts PipelineOptions, log Logger) (Result, error) {
	buf, err := os.ReadFile(opts.InputPath)
	if err != nil {
		return Result{}, fmt.Errorf("read input: %w", err)
	}

	bar := progress.NewProgressBar(6, "parsing "+opts.InputPath)
	if !opts.ShowProgress {
		bar.Disable()
	}

	fragments := ExtractFragments(buf, opts.RegexTimeout, log)
	bar.Increment()
	if log != nil {
		log.Info("pass 1: %d compressed fragments", len(fragments))
	}

	refBlocks := ResolveReferenceBlocks(buf, fragments, opts.RegexTimeout, log)
	bar.Increment()
	if log != nil {
		log.Info("pass 2: %d reference blocks", len(refBlocks))
	}

	rawBlocks, addrRecords := ExtractRawBlocks(buf, opts.RegexTimeout, log)
	bar.Increment()
	if log != nil {
		log.Info("pass 3: %d raw blocks, %d address records", len(rawBlocks), len(addrRecords))
	}

	// Pass 5 runs ahead of pass 4's linking step: element-to-XML linking
	// needs the XmlBlock set already built.
	xmlBlocks := DecodeXmlBlocks(buf, fragments, opts.RegexTimeout, log)
	bar.Increment()
	if log != nil {
		log.Info("pass 5: %d xml blocks", len(xmlBlocks))
	}

	elements := ExtractElementBlocks(buf, opts.RegexTimeout, rawBlocks, refBlocks, xmlBlocks, log)
	bar.Increment()
	if log != nil {
		log.Info("pass 4: %d element blocks", len(elements))
	}
	backfillUnlinkedElements(elements, log)

	maxDepth := opts.ReferenceMaxDepth
	if maxDepth <= 0 {
		maxDepth = 32
	}
	addresses := MaterializeAddresses(elements, maxDepth, opts.DomainTag, log)
	bar.Increment()
	if log != nil {
		log.Info("pass 6: %d addresses", len(addresses))
	}
	bar.Finish()

	return Result{
		Addresses:           addresses,
		FragmentCount:       len(fragments),
		ReferenceBlockCount: len(refBlocks),
		RawBlockCount:       len(rawBlocks),
		AddressRecordCount:  len(addrRecords),
		ElementBlockCount:   len(elements),
		XmlBlockCount:       len(xmlBlocks),
	}, nil
}

// backfillUnlinkedElements handles instance-to-reference XML borrowing: an
// ElementBlock with no XML of its own inherits the XML of the ElementBlock
// whose name equals this one's ReferenceBlock link.
func backfillUnlinkedElements(elements []ElementBlock, log Logger) {
	sink := &FaultSink{}
	byName := map[string]*ElementBlock{}
	for i := range elements {
		byName[elements[i].Name] = &elements[i]
	}
	for i := range elements {
		el := &elements[i]
		if el.XML != nil {
			continue
		}
		if donor, ok := byName[el.ReferenceBlock]; ok && donor.XML != nil {
			el.XML = donor.XML
			continue
		}
		sink.Warn(log, UnmatchedElement, el.DataByteOffset, "%s has no raw, reference, or xml link", el.Name)
	}
	if len(sink.Faults) > 0 && log != nil {
		log.Debug("element backfill: %d faults skipped", len(sink.Faults))
	}
}
