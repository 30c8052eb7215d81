package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/japaniel/sentencebase/pkg/db"
	"github.com/japaniel/sentencebase/pkg/export"
	"github.com/japaniel/sentencebase/pkg/ingest"
	"github.com/japaniel/sentencebase/pkg/intake"
	"github.com/japaniel/sentencebase/pkg/tokenize"
	"github.com/japaniel/sentencebase/pkg/vocab"
)

func userCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add [id]",
		Short: "Register a user (a random UUID when no id is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := uuid.NewString()
			if len(args) == 1 {
				id = args[0]
			}
			conn, err := a.open()
			if err != nil {
				return err
			}
			u, err := db.CreateUser(cmd.Context(), conn, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u.ID)
			return nil
		},
	})
	return cmd
}

func analyzeCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "analyze [text]",
		Short: "Show the words a sentence would record",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []tokenize.Option
			if all {
				opts = append(opts, tokenize.WithAllTokens())
			}
			analyzer, err := tokenize.NewAnalyzer(opts...)
			if err != nil {
				return err
			}
			tokens, err := analyzer.Tokenize(strings.Join(args, " "))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range tokens {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", t.Surface, t.DictionaryForm, t.Reading, t.PrimaryPOS())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "keep particles, symbols and other function words")
	return cmd
}

func submitCmd(a *app) *cobra.Command {
	var user, word, reading string

	cmd := &cobra.Command{
		Use:   "submit [sentence]",
		Short: "Record a sentence's words and queue it for the next batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ig, err := a.ingester(true)
			if err != nil {
				return err
			}
			var hint *ingest.WordHint
			if word != "" {
				hint = &ingest.WordHint{DictionaryForm: word, Reading: reading}
			}
			s, err := ig.Submit(cmd.Context(), user, strings.Join(args, " "), hint)
			var admErr *intake.AdmissionError
			if errors.As(err, &admErr) {
				return fmt.Errorf("%w: words were still counted; run 'sentencebase batch' to make room", err)
			}
			if err != nil {
				return err
			}
			w, err := vocab.Get(cmd.Context(), ig.DB, user, s.WordID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued sentence %d for %s (%s), seen %d times\n",
				s.ID, w.DictionaryForm, w.Reading, w.Frequency)
			return nil
		},
	}

	requireUserFlag(cmd, &user)
	cmd.Flags().StringVar(&word, "word", "", "dictionary form the sentence exemplifies (default: first word)")
	cmd.Flags().StringVar(&reading, "reading", "", "reading of --word, in katakana")
	return cmd
}

func pendingCmd(a *app) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List sentences waiting for a batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ig, err := a.ingester(false)
			if err != nil {
				return err
			}
			pending, err := ig.PendingSnapshot(cmd.Context(), user)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range pending {
				fmt.Fprintf(out, "%d\t%s\t%s\n", s.ID, s.CreatedAt.Format("2006-01-02 15:04"), s.Text)
			}
			fmt.Fprintf(out, "%d of %d pending\n", len(pending), ig.Queue.Limit())
			return nil
		},
	}

	requireUserFlag(cmd, &user)
	return cmd
}

func withdrawCmd(a *app) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "withdraw [sentence-id]",
		Short: "Remove a pending sentence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid sentence id %q", args[0])
			}
			ig, err := a.ingester(false)
			if err != nil {
				return err
			}
			if err := ig.Withdraw(cmd.Context(), user, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "withdrew sentence %d\n", id)
			return nil
		},
	}

	requireUserFlag(cmd, &user)
	return cmd
}

func batchCmd(a *app) *cobra.Command {
	var user string
	var ids []int64

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Turn pending sentences into a mining batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ig, err := a.ingester(false)
			if err != nil {
				return err
			}
			var b db.MiningBatch
			if cmd.Flags().Changed("ids") {
				b, err = ig.RequestSelectedBatch(cmd.Context(), user, ids)
			} else {
				b, err = ig.RequestBatch(cmd.Context(), user)
			}
			if err != nil {
				return err
			}
			view, err := ig.Batch(cmd.Context(), user, b.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "batch %d: %d sentences\n", b.ID, len(view.Entries))
			return nil
		},
	}

	requireUserFlag(cmd, &user)
	cmd.Flags().Int64SliceVar(&ids, "ids", nil, "only these pending sentence ids")
	return cmd
}

func batchesCmd(a *app) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List batches, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ig, err := a.ingester(false)
			if err != nil {
				return err
			}
			batches, err := ig.Batches(cmd.Context(), user)
			if err != nil {
				return err
			}
			if len(batches) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No batches yet. Use 'sentencebase batch' to create one.")
				return nil
			}
			for _, b := range batches {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", b.ID, b.CreatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	requireUserFlag(cmd, &user)
	return cmd
}

func showCmd(a *app) *cobra.Command {
	var user, format string

	cmd := &cobra.Command{
		Use:   "show [batch-id]",
		Short: "Export a batch with definitions and corpus ranks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid batch id %q", args[0])
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			ig, err := a.ingester(false)
			if err != nil {
				return err
			}
			view, err := ig.Batch(cmd.Context(), user, id)
			if err != nil {
				return err
			}
			return export.Write(cmd.OutOrStdout(), f, view.Batch, view.Entries, a.glosser(), a.ranker())
		},
	}

	requireUserFlag(cmd, &user)
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: json or yaml")
	return cmd
}

func wordsCmd(a *app) *cobra.Command {
	var user string
	var limit int
	var unmined bool

	cmd := &cobra.Command{
		Use:   "words",
		Short: "List recorded words by frequency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ig, err := a.ingester(false)
			if err != nil {
				return err
			}
			stats, err := ig.Stats(cmd.Context(), user)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			shown := 0
			for w, err := range ig.Vocabulary(cmd.Context(), user) {
				if err != nil {
					return err
				}
				if unmined && w.IsMined {
					continue
				}
				if limit > 0 && shown == limit {
					break
				}
				mark := " "
				if w.IsMined {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %5d  %s (%s)\n", mark, w.Frequency, w.DictionaryForm, w.Reading)
				shown++
			}
			fmt.Fprintf(out, "%d words, %d mined, %d occurrences\n", stats.Words, stats.Mined, stats.Occurrences)
			return nil
		},
	}

	requireUserFlag(cmd, &user)
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of words to show (0 for all)")
	cmd.Flags().BoolVar(&unmined, "unmined", false, "only words not yet in a batch")
	return cmd
}
