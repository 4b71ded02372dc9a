// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/neurogears/antsct-prep/internal/types"
	"gopkg.in/yaml.v3"
)

func writeReport(out io.Writer, spec types.RunSpec, format, outPath string) error {
	var data []byte
	var err error

	switch format {
	case "json":
		data, err = json.MarshalIndent(spec, "", "  ")
		data = append(data, '\n')
	case "yaml":
		data, err = yaml.Marshal(spec)
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
	if err != nil {
		return err
	}

	if outPath == "" {
		_, err = out.Write(data)
		return err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write to %s: %w", outPath, err)
	}
	fmt.Fprintf(out, "[OK] Report written to %s\n", outPath)
	return nil
}
