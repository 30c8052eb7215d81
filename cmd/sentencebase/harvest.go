package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/japaniel/sentencebase/pkg/dictionary"
	"github.com/japaniel/sentencebase/pkg/harvest"
)

func harvestCmd(a *app) *cobra.Command {
	var user string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "harvest [url]",
		Short: "Submit every sentence of a web article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			article, err := harvest.NewFetcher().Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Title: %s\n", article.Title)
			fmt.Fprintf(out, "Extracted %d sentences.\n", len(article.Sentences))
			if dryRun {
				for _, s := range article.Sentences {
					fmt.Fprintln(out, s)
				}
				return nil
			}

			ig, err := a.ingester(true)
			if err != nil {
				return err
			}
			ig.OnProgress = func(current, total int) {
				a.logger.Debug("harvest progress", "current", current, "total", total)
			}
			report, err := ig.SubmitDocument(cmd.Context(), user, article.Sentences)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Queued %d, refused %d (queue full), skipped %d; recorded %d word occurrences.\n",
				report.Admitted, report.Refused, report.Skipped, report.Occurrences)
			return nil
		},
	}

	requireUserFlag(cmd, &user)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the sentences without submitting them")
	return cmd
}

func fetchDictCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch-dict",
		Short: "Download the JMdict English dictionary used for definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.DictionaryPath
			d := &dictionary.Downloader{Logger: a.logger}
			if err := d.Ensure(cmd.Context(), path); err != nil {
				return err
			}
			entries, err := dictionary.LoadJMdictSimplified(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dictionary ready at %s (%d entries).\n", path, len(entries))
			return nil
		},
	}
}
