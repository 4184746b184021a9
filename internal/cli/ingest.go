package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"pkai/internal/ingest"
	"pkai/internal/store"
)

func newIngestCmd(flags *GlobalFlags) *cobra.Command {
	var opts ingest.Options
	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Index .txt and .md files into the local knowledge base",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			dir, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(flags, true)
			if err != nil {
				return err
			}
			lg, err := newLogger(cfg, false)
			if err != nil {
				return fmt.Errorf("logging: %w", err)
			}
			defer lg.Close()

			st := store.NewSQLiteStore(cfg.Knowledge.DBPath)
			defer st.Close()

			report, err := ingest.NewService(st, opts, lg.Logger).Run(cmd.Context(), dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			s := newStyles(out, false)
			fmt.Fprintln(out, report.Message())
			fmt.Fprintln(out, s.dim(fmt.Sprintf("%s %s %s %s %s",
				s.stat("scanned", report.Scanned),
				s.stat("indexed", report.Indexed),
				s.stat("skipped", report.Skipped),
				s.stat("deleted", report.Deleted),
				s.stat("errors", report.Errors),
			)))
			fmt.Fprintln(out, s.kv("Database", st.Path()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Force, "force", false, "re-index files even when unchanged")
	cmd.Flags().BoolVar(&opts.Prune, "prune", false, "remove documents whose files no longer exist")
	cmd.Flags().StringSliceVar(&opts.Exclude, "exclude", nil, "glob of paths to skip (repeatable, supports **)")
	return cmd
}
