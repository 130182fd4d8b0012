package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/interviewer/internal/conversation"
)

var decodeIndent bool

// decodeCmd runs a persisted history through the codec, which is how
// operators inspect a record that fails to load cleanly.
var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Decode a persisted conversation history and print its canonical form",
	Long:  "Reads a persisted history from file, or stdin when file is omitted or \"-\", and prints the canonical JSON. Recovery warnings go to stderr.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer f.Close()
			in = f
		}
		return decodeHistory(in, cmd.OutOrStdout(), cmd.ErrOrStderr(), decodeIndent)
	},
}

func init() {
	decodeCmd.Flags().BoolVar(&decodeIndent, "indent", false, "pretty-print the output")
}

func decodeHistory(in io.Reader, out, diag io.Writer, indent bool) error {
	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	codec := conversation.NewCodec(slog.New(slog.NewTextHandler(diag, nil)))
	history := codec.Decode(string(raw))

	enc := json.NewEncoder(out)
	if indent {
		enc.SetIndent("", "  ")
	}
	if history == nil {
		history = []conversation.Message{}
	}
	if err := enc.Encode(history); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}
