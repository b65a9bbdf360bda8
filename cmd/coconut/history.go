package main

import (
	"fmt"
	"io"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/shmookey/coconut/internal/app"
	"github.com/shmookey/coconut/pkg/odm"
	"github.com/shmookey/coconut/pkg/revision"
	"github.com/shmookey/coconut/pkg/store"
)

func newHistoryCmd(opts *rootOpts) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <type> <id> [field]",
		Short: "Print the recorded values of a document, newest first",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := app.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			typ, ok := a.Session.Type(args[0])
			if !ok {
				return fmt.Errorf("unknown document type %s", args[0])
			}
			doc, err := typ.Get(ctx, store.ID(args[1]))
			if err != nil {
				return err
			}
			field := ""
			if len(args) == 3 {
				field = args[2]
			}
			return printHistory(cmd, a.Revisions, doc, field, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many revisions (0 prints all)")
	return cmd
}

func printHistory(cmd *cobra.Command, rec *revision.Recorder, doc *odm.Document, field string, limit int) error {
	ctx := cmd.Context()
	h, err := rec.History(doc, field)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	n := 0
	for h.Next(ctx) {
		if err := printEntry(out, h); err != nil {
			return err
		}
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	return h.Err()
}

func printEntry(out io.Writer, h *revision.History) error {
	b, err := gojson.Marshal(odm.JSONValue(h.Value()))
	if err != nil {
		return err
	}
	secs := revision.Date(h.Revision())
	when := time.Unix(0, int64(secs*float64(time.Second))).UTC().Format(time.RFC3339)
	_, err = fmt.Fprintf(out, "%s\t%s\t%s\n", when, h.Revision().ID(), b)
	return err
}
