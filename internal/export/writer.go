// Package export writes the final address stream to disk.
package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/RafaelBenildoMafra/Tia-Parser/internal/plf"
)

// WriteFile writes one line per address to path, in the input file's
// directory: "<dotted_name>, 8A0E<...>".
func WriteFile(path string, addresses []plf.Address) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	if err := Write(f, addresses); err != nil {
		return fmt.Errorf("write export file: %w", err)
	}
	return nil
}

// Write streams addresses to w, deduplicating by name: the last occurrence
// wins, matching the "latest wins" convention used throughout the
// pipeline's own dedup rules.
func Write(w io.Writer, addresses []plf.Address) error {
	lastIndex := map[string]int{}
	for i, a := range addresses {
		lastIndex[a.Name] = i
	}

	bw := bufio.NewWriter(w)
	for i, a := range addresses {
		if lastIndex[a.Name] != i {
			continue
		}
		if _, err := fmt.Fprintf(bw, "%s, %s\n", a.Name, a.ReferenceAddress); err != nil {
			return err
		}
	}
	return bw.Flush()
}
