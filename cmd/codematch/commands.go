package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/localrivet/codematch"
	"github.com/localrivet/codematch/internal/matcher"
)

func makeSourceDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "make-source-db [dir] [extension-or-files]",
		Short: "Embed a source directory into a new source store",
		Long: `Embed the files of a directory into data/<uuid>.db and record it in
data/source_db_map.json.

The second argument is either a pattern such as "*.py" or a comma-separated
list of file names. Missing arguments are asked for interactively.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, spec, err := sourceArgs(cmd.InOrStdin(), cmd.OutOrStdout(), args)
			if err != nil {
				return err
			}

			svc, _, err := newService()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, cancel := commandContext(cmd)
			defer cancel()

			record, err := svc.MakeSourceDB(ctx, dir, spec)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved at %s (uuid %s)\n",
				filepath.Join(svc.Config().Store.DataDir, record.UUID+".db"), record.UUID)
			return nil
		},
	}
}

func makeQuestionDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "make-question-db <question>",
		Short: "Embed a question as the current query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := newService()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, cancel := commandContext(cmd)
			defer cancel()

			record, err := svc.MakeQuestionDB(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Question saved at %s (uuid %s)\n", svc.Config().QueryPath(), record.UUID)
			return nil
		},
	}
}

func selectDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select-db [question]",
		Short: "Select the file closest to the question and explain it",
		Long: `Select the stored file whose embedding is most similar to the question
and print the model's explanation of it. A question argument replaces the
stored question first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := newService()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, cancel := commandContext(cmd)
			defer cancel()

			var answer *codematch.Answer
			if question := strings.Join(args, " "); question != "" {
				answer, err = svc.Ask(ctx, source, question)
			} else {
				answer, err = svc.Explain(ctx, source)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Most similar embedding ID: %s (score %.4f)\n", answer.Result.ID, answer.Result.Score)
			if answer.Explanation.Offline {
				fmt.Fprintln(out, "No model answered; showing the matched content.")
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, answer.Explanation.Text)
			return nil
		},
	}
}

func matchCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Print the entry most similar to the stored question",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := newService()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, cancel := commandContext(cmd)
			defer cancel()

			result, err := svc.Match(ctx, source)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, result)
			}
			fmt.Fprintf(out, "Most similar embedding ID: %s\n", result.ID)
			fmt.Fprintf(out, "Score: %.6f (entry %d)\n", result.Score, result.Index)
			printDiagnostics(out, result.Diagnostics)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func rankCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "List the entries most similar to the stored question",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := newService()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, cancel := commandContext(cmd)
			defer cancel()

			ranking, err := svc.Rank(ctx, source, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, ranking)
			}
			for i, m := range ranking.Matches {
				fmt.Fprintf(out, "%3d. %.6f  %s\n", i+1, m.Score, m.ID)
			}
			printDiagnostics(out, ranking.Diagnostics)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of entries to list (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the ranking as JSON")
	return cmd
}

func sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the recorded source stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := newService()
			if err != nil {
				return err
			}
			defer svc.Close()

			sources, err := svc.Sources()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(sources) == 0 {
				fmt.Fprintln(out, "No source stores recorded.")
				return nil
			}
			for _, src := range sources {
				fmt.Fprintf(out, "%s  %-10s  %s  %s\n", src.UUID, src.Type, src.Time, src.Path)
			}
			return nil
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the configured LLM providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := newService()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, cancel := commandContext(cmd)
			defer cancel()

			report, err := svc.Health(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}

func printDiagnostics(out io.Writer, d matcher.Diagnostics) {
	fmt.Fprintf(out, "Compared %d of %d entries", d.Compared, d.Total)
	if d.Skipped() > 0 {
		fmt.Fprintf(out, " (skipped: %d incomparable, %d degenerate, %d malformed)",
			d.Incomparable, d.Degenerate, d.Malformed)
	}
	fmt.Fprintln(out)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
