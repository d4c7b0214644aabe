package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cbegin/tabplay-go"
	"github.com/cbegin/tabplay-go/internal/tab"
)

var canonical bool

var parseCmd = &cobra.Command{
	Use:   "parse <file|->",
	Short: "Print the timeline parsed from a tablature file",
	Long: `Parse a tablature file and print its timeline as JSON, one object per event,
sorted by tick. With --canonical the timeline is written back as tablature with
numeric deltas instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().BoolVar(&canonical, "canonical", false, "print canonical tablature instead of JSON")
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	text, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	events := tabplay.Parse(text)
	out := cmd.OutOrStdout()
	if canonical {
		_, err := fmt.Fprint(out, tab.Format(events))
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(events)
}
