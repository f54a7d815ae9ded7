package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/simm/internal/modules/simm"
	"github.com/aristath/simm/internal/modules/simm/params"
	"github.com/aristath/simm/pkg/ensemble"
)

func marginCmd(root *rootOptions) *cobra.Command {
	var (
		gradientFile     string
		postingThreshold float64
		shards           int
		output           string
	)
	cmd := &cobra.Command{
		Use:   "margin",
		Short: "Compute the initial margin of a gradient document",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "json" && output != "table" {
				return fmt.Errorf("unsupported output %q", output)
			}

			doc, err := readGradientDocument(cmd.InOrStdin(), gradientFile)
			if err != nil {
				return err
			}
			g, err := doc.Gradient()
			if err != nil {
				return err
			}
			table, err := params.Resolve(root.paramsFile)
			if err != nil {
				return err
			}

			evaluation := doc.EvaluationTime
			if evaluation.IsZero() {
				evaluation = time.Now().UTC().Truncate(24 * time.Hour)
			}
			calc := simm.NewCalculator(table, root.log, simm.WithPostingThreshold(postingThreshold))
			res, err := calc.Evaluate(cmd.Context(), evaluation, g, shards)
			if err != nil {
				return err
			}

			if output == "table" {
				return writeBreakdown(cmd.OutOrStdout(), res)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"params_version": table.Version,
				"result":         res,
				"summary":        ensemble.Summarize(res.Total),
			})
		},
	}
	cmd.Flags().StringVarP(&gradientFile, "gradient", "g", "", `gradient document (JSON); "-" reads stdin`)
	cmd.Flags().Float64Var(&postingThreshold, "posting-threshold", 0, "threshold subtracted from the gross margin")
	cmd.Flags().IntVar(&shards, "shards", 1, "split the ensemble into this many concurrent shards")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format (json, table)")
	_ = cmd.MarkFlagRequired("gradient")
	return cmd
}

func readGradientDocument(stdin io.Reader, path string) (*simm.GradientDocument, error) {
	if path == "-" {
		return simm.DecodeGradientDocument(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open gradient: %w", err)
	}
	defer f.Close()
	return simm.DecodeGradientDocument(f)
}

// writeBreakdown prints the mean of every stage of the result.
func writeBreakdown(w io.Writer, res *simm.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "PRODUCT CLASS\tRISK CLASS\tDELTA\tVEGA\tCURVATURE\tMARGIN\t")
	for _, pc := range res.ProductClasses {
		for _, rc := range pc.RiskClasses {
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
				pc.ProductClass, rc.RiskClass, mean(rc.Delta), mean(rc.Vega), mean(rc.Curvature), mean(rc.Margin))
		}
		fmt.Fprintf(tw, "%s\t\t\t\t\t%.2f\t\n", pc.ProductClass, mean(pc.Margin))
	}
	fmt.Fprintf(tw, "GROSS\t\t\t\t\t%.2f\t\n", mean(res.Gross))
	fmt.Fprintf(tw, "TOTAL\t\t\t\t\t%.2f\t\n", mean(res.Total))
	if err := tw.Flush(); err != nil {
		return err
	}
	if res.Paths > 1 {
		s := ensemble.Summarize(res.Total)
		fmt.Fprintf(w, "\npaths=%d mean=%.2f p95=%.2f p99=%.2f\n", s.Paths, s.Mean, s.P95, s.P99)
	}
	if len(res.Floors) > 0 {
		fmt.Fprintf(w, "floor events: %d\n", len(res.Floors))
	}
	return nil
}

func mean(v ensemble.Vector) float64 {
	return ensemble.Summarize(v).Mean
}
