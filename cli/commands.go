package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/stevemurr/blobdoc/collection"
)

func (a *app) createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <collection> <json|@file|->",
		Short: "Create one document, or one per element of a JSON array",
		Args:  cobra.ExactArgs(2),
		RunE: a.withCollection(func(cmd *cobra.Command, c *collection.Collection, args []string) error {
			text, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			docs, many, err := decodeDocuments(text)
			if err != nil {
				return err
			}
			if !many {
				id, err := c.Create(docs[0])
				if err != nil {
					return err
				}
				return a.write(cmd.OutOrStdout(), map[string]string{"id": id})
			}
			results := c.CreateMany(docs)
			out := make([]resultOut, len(results))
			var errs []error
			for i, r := range results {
				out[i] = resultOut{ID: r.ID, OK: r.Err == nil, Error: errString(r.Err)}
				if r.Err != nil {
					errs = append(errs, fmt.Errorf("document %d: %w", i, r.Err))
				}
			}
			if err := a.write(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			return errors.Join(errs...)
		}),
	}
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Print one document",
		Args:  cobra.ExactArgs(2),
		RunE: a.withCollection(func(cmd *cobra.Command, c *collection.Collection, args []string) error {
			r, ok := c.FindByID(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", collection.ErrNotFound, args[0])
			}
			return a.write(cmd.OutOrStdout(), recordOut{ID: r.ID, Data: r.Data})
		}),
	}
}

func (a *app) updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <collection> <id> <json|@file|->",
		Short: "Merge fields into an existing document",
		Args:  cobra.ExactArgs(3),
		RunE: a.withCollection(func(cmd *cobra.Command, c *collection.Collection, args []string) error {
			text, err := readInput(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}
			patch, err := decodeDocument(text)
			if err != nil {
				return err
			}
			ok, err := c.Update(args[0], patch)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", collection.ErrNotFound, args[0])
			}
			r, _ := c.FindByID(args[0])
			return a.write(cmd.OutOrStdout(), recordOut{ID: r.ID, Data: r.Data})
		}),
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> <id>...",
		Short: "Delete documents",
		Args:  cobra.MinimumNArgs(2),
		RunE: a.withCollection(func(cmd *cobra.Command, c *collection.Collection, args []string) error {
			results := c.DeleteMany(args)
			out := make([]resultOut, len(results))
			var errs []error
			for i, r := range results {
				out[i] = resultOut{ID: args[i], OK: r.OK, Error: errString(r.Err)}
				if r.Err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", args[i], r.Err))
				}
			}
			if err := a.write(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			return errors.Join(errs...)
		}),
	}
}

func (a *app) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <collection>",
		Short: "Remove every document",
		Args:  cobra.ExactArgs(1),
		RunE: a.withCollection(func(cmd *cobra.Command, c *collection.Collection, _ []string) error {
			n := c.Count()
			if err := c.Clear(); err != nil {
				return err
			}
			return a.write(cmd.OutOrStdout(), map[string]int{"removed": n})
		}),
	}
}

func (a *app) findCmd() *cobra.Command {
	var like string
	var fields []string
	cmd := &cobra.Command{
		Use:   "find <collection>",
		Short: "List documents, optionally those containing a term",
		Args:  cobra.ExactArgs(1),
		RunE: a.withCollection(func(cmd *cobra.Command, c *collection.Collection, _ []string) error {
			var recs []collection.Record
			if cmd.Flags().Changed("like") {
				recs = c.FindLike(like, fields...)
			} else {
				recs = c.FindMany(nil)
			}
			return a.write(cmd.OutOrStdout(), records(recs))
		}),
	}
	cmd.Flags().StringVar(&like, "like", "", "case-insensitive substring to search for")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "field to search (repeatable, default all fields)")
	return cmd
}

func parseConditions(where []string) ([]collection.Condition, error) {
	conds := make([]collection.Condition, 0, len(where))
	for _, w := range where {
		cond, err := collection.ParseCondition(w)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

func (a *app) queryCmd() *cobra.Command {
	var where, sortBy []string
	var limit int
	cmd := &cobra.Command{
		Use:   "query <collection>",
		Short: "Filter, sort and limit documents",
		Example: `  blobdoc query people --where "age >= 18" --sort age:desc --limit 10
  blobdoc query people --where "name startsWith 'an'"`,
		Args: cobra.ExactArgs(1),
		RunE: a.withCollection(func(cmd *cobra.Command, c *collection.Collection, _ []string) error {
			conds, err := parseConditions(where)
			if err != nil {
				return err
			}
			var spec collection.SortSpec
			for _, s := range sortBy {
				f, err := collection.ParseSortField(s)
				if err != nil {
					return err
				}
				spec = append(spec, f)
			}
			recs, err := c.Query(conds, spec, limit)
			if err != nil {
				return err
			}
			return a.write(cmd.OutOrStdout(), records(recs))
		}),
	}
	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, `condition "field op value" (repeatable, all must match)`)
	cmd.Flags().StringArrayVarP(&sortBy, "sort", "s", nil, "sort key field[:asc|desc] (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results, 0 for all")
	return cmd
}

func (a *app) countCmd() *cobra.Command {
	var where string
	cmd := &cobra.Command{
		Use:   "count <collection>",
		Short: "Count documents, optionally those matching a condition",
		Args:  cobra.ExactArgs(1),
		RunE: a.withCollection(func(cmd *cobra.Command, c *collection.Collection, _ []string) error {
			n := c.Count()
			if where != "" {
				cond, err := collection.ParseCondition(where)
				if err != nil {
					return err
				}
				if n, err = c.CountWhere(cond); err != nil {
					return err
				}
			}
			return a.write(cmd.OutOrStdout(), map[string]int{"count": n})
		}),
	}
	cmd.Flags().StringVarP(&where, "where", "w", "", `condition "field op value"`)
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <collection>",
		Short: "Print the collection snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: a.withCollection(func(cmd *cobra.Command, c *collection.Collection, _ []string) error {
			text, err := c.Export()
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), text+"\n")
			return err
		}),
	}
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <collection> <@file|->",
		Short: "Replace the collection with the contents of a snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: a.withCollection(func(cmd *cobra.Command, c *collection.Collection, args []string) error {
			text, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			rep, err := c.Import(text)
			if err != nil {
				return err
			}
			out := importOut{Imported: rep.Imported, Rejected: make([]rejectionOut, len(rep.Rejected))}
			for i, r := range rep.Rejected {
				out.Rejected[i] = rejectionOut{Index: r.Index, ID: r.ID, Error: errString(r.Err)}
			}
			return a.write(cmd.OutOrStdout(), out)
		}),
	}
}
