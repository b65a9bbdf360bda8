package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/shmookey/coconut/pkg/schema"
)

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect schema files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <file>",
		Short: "Validate a YAML schema file and list its types",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "read schema file")
			}
			types, err := schema.LoadYAML(data)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(types))
			for name := range types {
				names = append(names, name)
			}
			sort.Strings(names)
			out := cmd.OutOrStdout()
			for _, name := range names {
				s := types[name]
				fmt.Fprintf(out, "%s\n", name)
				for _, f := range s.FieldNames() {
					fmt.Fprintf(out, "  %s: %s\n", f, describe(s.Fields[f]))
				}
			}
			return nil
		},
	})
	return cmd
}

func describe(s *schema.Schema) string {
	k := schema.GetType(s)
	var b strings.Builder
	b.WriteString(k.String())
	switch k {
	case schema.KindReference:
		if s.Target != "" {
			b.WriteString(" -> " + s.Target)
		}
	case schema.KindSequence:
		if s.Range != schema.Exact {
			b.WriteString(" (range " + s.Range.String() + ")")
		}
	}
	if s == nil {
		return b.String()
	}
	var mods []string
	if s.Unique {
		mods = append(mods, "unique")
	} else if s.Index {
		mods = append(mods, "index")
	}
	if s.HasDefault {
		mods = append(mods, fmt.Sprintf("default %v", s.Default))
	}
	if !s.Traversed() {
		mods = append(mods, "opaque")
	}
	if s.Filter {
		mods = append(mods, "filter")
	}
	if len(mods) > 0 {
		b.WriteString(" [" + strings.Join(mods, ", ") + "]")
	}
	return b.String()
}
