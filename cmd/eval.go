package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cwbudde/sdfdataterm/internal/binding"
	"github.com/spf13/cobra"
)

var (
	evalRequestPath string
	evalPairPath    string
	evalX           int
	evalY           int
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate the data term at one location",
	Long: `Evaluates the data gradient and energy at a single (x, y) location.

Input is either a JSON request with all four fields (--request, "-" for stdin)
or a field pair (--pair) whose live gradients are derived automatically.
The result is printed as {"gradient": [gx, gy], "energy": e}.`,
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVar(&evalRequestPath, "request", "", "JSON data-term request file, - for stdin")
	evalCmd.Flags().StringVar(&evalPairPath, "pair", "", "JSON field pair file")
	evalCmd.Flags().IntVar(&evalX, "x", 0, "Column of the location (with --pair)")
	evalCmd.Flags().IntVar(&evalY, "y", 0, "Row of the location (with --pair)")
	addScaleFlag(evalCmd)
	evalCmd.MarkFlagsMutuallyExclusive("request", "pair")
	evalCmd.MarkFlagsOneRequired("request", "pair")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	ev, err := newEvaluator()
	if err != nil {
		return err
	}

	var req binding.Request
	if evalRequestPath != "" {
		req, err = readRequest(cmd.InOrStdin(), evalRequestPath)
		if err != nil {
			return err
		}
	} else {
		pair, err := binding.LoadFieldPair(evalPairPath)
		if err != nil {
			return err
		}
		req = binding.Request{WarpedLive: pair.Live, Canonical: pair.Canonical, X: evalX, Y: evalY}
	}

	resp, err := binding.DataTermAtLocation(ev, req)
	if err != nil {
		return fmt.Errorf("failed to evaluate at (%d, %d): %w", req.X, req.Y, err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	return enc.Encode(resp)
}

func readRequest(stdin io.Reader, path string) (binding.Request, error) {
	var req binding.Request

	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return req, fmt.Errorf("failed to open request: %w", err)
		}
		defer f.Close()
		r = f
	}

	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return req, fmt.Errorf("failed to decode request: %w", err)
	}
	return req, nil
}
