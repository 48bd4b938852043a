package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/opencontainers/go-digest"
	"github.com/spf13/cobra"

	"buildd/internal/fileutil"
	"buildd/internal/taskcache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and populate the task-result cache",
	}
	cacheCmd.AddCommand(newCachePathCommand(ctx))
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheGetCommand(ctx))
	cacheCmd.AddCommand(newCachePutCommand(ctx))
	cacheCmd.AddCommand(newCacheVerifyCommand(ctx))
	return cacheCmd
}

func (c *commandContext) openCache() (*taskcache.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return taskcache.New(cfg.Cache.Dir)
}

func newCachePathCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.Cache.Dir)
			return nil
		},
	}
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize cache contents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := ctx.openCache()
			if err != nil {
				return err
			}
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			rows := [][]string{
				{"Location", store.Describe()},
				{"Entries", humanize.Comma(int64(stats.Entries))},
				{"Size", humanize.IBytes(uint64(stats.TotalBytes))},
				{"Temp files", humanize.Comma(int64(stats.TempFiles))},
				{"Foreign files", humanize.Comma(int64(stats.Foreign))},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := ctx.openCache()
			if err != nil {
				return err
			}
			keys, err := store.Keys(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(keys) == 0 {
				fmt.Fprintln(out, "Cache is empty")
				return nil
			}
			rows := make([][]string, 0, len(keys))
			for _, key := range keys {
				reader, ok, err := store.Get(key)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				rows = append(rows, []string{key.String(), humanize.IBytes(uint64(reader.Size()))})
			}
			fmt.Fprintln(out, renderTable([]string{"Key", "Size"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func newCacheGetCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Write a cached result to stdout or a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := taskcache.ParseKey(args[0])
			if err != nil {
				return err
			}
			store, err := ctx.openCache()
			if err != nil {
				return err
			}
			reader, ok, err := store.Get(key)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no cached result for %s", key)
			}

			target := strings.TrimSpace(output)
			if target == "" {
				return reader.Read(func(r io.Reader) error {
					_, err := io.Copy(cmd.OutOrStdout(), r)
					return err
				})
			}
			return reader.Read(func(r io.Reader) error {
				_, err := fileutil.WriteFileAtomic(target, r, 0o644)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the result to this file instead of stdout")
	return cmd
}

func newCachePutCommand(ctx *commandContext) *cobra.Command {
	var keyFlag string
	cmd := &cobra.Command{
		Use:   "put [file]",
		Short: "Store a file (or stdin) under its SHA-256 or an explicit key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openCache()
			if err != nil {
				return err
			}

			var (
				key    taskcache.Key
				writer taskcache.Writer
			)
			if len(args) == 1 {
				key, writer, err = fileSource(args[0], keyFlag)
			} else {
				key, writer, err = stdinSource(cmd.InOrStdin(), keyFlag)
			}
			if err != nil {
				return err
			}

			if err := store.Put(key, writer); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyFlag, "key", "k", "", "Store under this hex key instead of the content hash")
	return cmd
}

func fileSource(path, keyFlag string) (taskcache.Key, taskcache.Writer, error) {
	var (
		key taskcache.Key
		err error
	)
	if strings.TrimSpace(keyFlag) != "" {
		key, err = taskcache.ParseKey(keyFlag)
	} else {
		var d digest.Digest
		d, _, err = fileutil.DigestFile(path, digest.SHA256)
		if err == nil {
			key, err = taskcache.KeyFromDigest(d)
		}
	}
	if err != nil {
		return taskcache.Key{}, nil, err
	}
	writer := taskcache.WriterFunc(func(w io.Writer) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	return key, writer, nil
}

func stdinSource(r io.Reader, keyFlag string) (taskcache.Key, taskcache.Writer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return taskcache.Key{}, nil, fmt.Errorf("read stdin: %w", err)
	}
	if strings.TrimSpace(keyFlag) == "" {
		return taskcache.SumKey(data), taskcache.BytesWriter(data), nil
	}
	key, err := taskcache.ParseKey(keyFlag)
	if err != nil {
		return taskcache.Key{}, nil, err
	}
	return key, taskcache.BytesWriter(data), nil
}

var errCacheCorrupt = errors.New("cache entries failed verification")

func newCacheVerifyCommand(ctx *commandContext) *cobra.Command {
	var contentAddressed bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Read every entry back and report unreadable or stray files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := ctx.openCache()
			if err != nil {
				return err
			}
			var opts []taskcache.VerifyOption
			if contentAddressed {
				opts = append(opts, taskcache.WithContentAddressed())
			}
			report, err := store.Verify(cmd.Context(), opts...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Checked %d entries (%d skipped)\n", report.Checked, report.Skipped)
			if len(report.Stray) > 0 {
				fmt.Fprintf(out, "Ignored %d stray files\n", len(report.Stray))
			}
			if report.OK() {
				fmt.Fprintln(out, "All entries verified")
				return nil
			}

			rows := make([][]string, 0, len(report.Unreadable)+len(report.Mismatches))
			for _, key := range report.Unreadable {
				rows = append(rows, []string{key.String(), "unreadable", ""})
			}
			for _, m := range report.Mismatches {
				rows = append(rows, []string{m.Key.String(), "content hashes to " + m.Actual, humanize.IBytes(uint64(m.Size))})
			}
			fmt.Fprintln(out, renderTable([]string{"Key", "Problem", "Size"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
			return fmt.Errorf("%w: %d entries", errCacheCorrupt, len(rows))
		},
	}
	cmd.Flags().BoolVar(&contentAddressed, "content-addressed", false, "Also rehash entries and compare against keys (only for caches keyed by content)")
	return cmd
}
