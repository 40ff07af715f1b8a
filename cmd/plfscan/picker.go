package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
)

// pickInputPath prompts for a .plf path when --input was not given, letting
// the operator browse the filesystem rather than type a path from memory.
func pickInputPath() (string, error) {
	var path string

	group := huh.NewGroup(
		huh.NewFilePicker().
			Title("TIA Portal container path").
			Description("Browse to the .plf project container to scan.").
			CurrentDirectory(".").
			AllowedTypes([]string{".plf"}).
			Key("input_path").
			Validate(func(s string) error {
				if s == "" {
					return fmt.Errorf("a path is required")
				}
				return nil
			}).
			Value(&path),
	)

	if err := huh.NewForm(group).Run(); err != nil {
		return "", err
	}
	return path, nil
}
