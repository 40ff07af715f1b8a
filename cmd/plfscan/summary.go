package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/RafaelBenildoMafra/Tia-Parser/internal/plf"
)

var (
	summaryTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	summaryMetaStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	summaryFrameStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("12")).
				Padding(0, 1)
)

// renderSummary builds the post-run report shown after a successful extract.
func renderSummary(inputPath, outputPath string, inputSize int64, result plf.Result, elapsed time.Duration) string {
	var b strings.Builder

	b.WriteString(summaryTitleStyle.Render("plfscan extraction complete"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "input:    %s (%s)\n", inputPath, humanize.Bytes(uint64(inputSize)))
	fmt.Fprintf(&b, "output:   %s\n", outputPath)
	fmt.Fprintf(&b, "elapsed:  %s\n\n", elapsed.Round(time.Millisecond))

	fmt.Fprintf(&b, "fragments:        %d\n", result.FragmentCount)
	fmt.Fprintf(&b, "reference blocks: %d\n", result.ReferenceBlockCount)
	fmt.Fprintf(&b, "raw blocks:       %d\n", result.RawBlockCount)
	fmt.Fprintf(&b, "address records:  %d\n", result.AddressRecordCount)
	fmt.Fprintf(&b, "element blocks:   %d\n", result.ElementBlockCount)
	fmt.Fprintf(&b, "xml blocks:       %d\n", result.XmlBlockCount)
	b.WriteString(summaryMetaStyle.Render(fmt.Sprintf("\n%d addresses written", len(result.Addresses))))

	return summaryFrameStyle.Render(b.String())
}
