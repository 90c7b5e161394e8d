package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/t77yq/loadwatch/internal/model"
	"github.com/t77yq/loadwatch/internal/scoring"
)

var scoreCmd = &cobra.Command{
	Use:   "score [file]",
	Short: "Score one activity record read from a file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open activity file: %w", err)
			}
			defer f.Close()
			in = f
		}
		return runScore(in, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}

func runScore(in io.Reader, out io.Writer) error {
	var rec model.ActivityRecord
	if err := json.NewDecoder(in).Decode(&rec); err != nil {
		return fmt.Errorf("failed to decode activity record: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(scoring.Report(rec))
}
