package main

import (
	"fmt"
	"regexp"
	"time"

	"github.com/italolelis/ytm_dumper/internal/config"
	"github.com/italolelis/ytm_dumper/internal/metadata"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// options are the resolved inputs of one run.
type options struct {
	cfg      *config.Config
	dbDir    string
	key      []byte
	filter   metadata.Filter
	listOnly bool
}

type flagValues struct {
	dest       string
	noMetadata bool
	streamDir  string
	index      string
	match      string
	since      string
	list       bool
	workers    int
	ivPrefix   int
	metrics    string
}

func newRootCommand() *cobra.Command {
	var flags flagValues

	cmd := &cobra.Command{
		Use:   "ytm_dumper <databases-dir> <base64-key>",
		Short: "Recover downloaded YouTube Music media from the app's encrypted cache",
		Long: `ytm_dumper reads the app's offline databases to find downloaded songs and
videos, locates them in the encrypted media cache and writes decrypted
files named "Artist - Title" into the destination directory.`,
		Version:       version,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := resolveOptions(cmd.Flags(), &flags, args, time.Now())
			if err != nil {
				return err
			}

			return run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.dest, "dest", ".", "Output directory for the media files")
	f.BoolVar(&flags.noMetadata, "no-metadata", false, "Do not write title, artist and cover art with ffmpeg")
	f.StringVar(&flags.streamDir, "streamdir", "", "Directory holding the cache, either a streams directory or the offline directory above it")
	f.StringVar(&flags.index, "index", "", "Path of cached_content_index.exi, overrides the lookup under --streamdir")
	f.StringVarP(&flags.match, "match", "m", "", "Only include items whose \"Artist - Title\" matches this regular expression")
	f.StringVarP(&flags.since, "since", "s", "", "Only include items saved since then, e.g. '24h', 'yesterday' or 'Jan 2'")
	f.BoolVarP(&flags.list, "list", "l", false, "Only list the items, do not decrypt them")
	f.IntVar(&flags.workers, "workers", 0, "Number of items decrypted in parallel (default: number of CPUs)")
	f.IntVar(&flags.ivPrefix, "iv-prefix", 0, "Read a per-file IV of this many bytes instead of deriving it from the cache key")
	f.StringVar(&flags.metrics, "metrics-addr", "", "Serve Prometheus metrics on this address while running")

	return cmd
}

// resolveOptions merges the environment configuration with the flags that
// were set explicitly.
func resolveOptions(fs *pflag.FlagSet, flags *flagValues, args []string, now time.Time) (*options, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	overrides := map[string]func(){
		"dest":         func() { cfg.Dest = flags.dest },
		"no-metadata":  func() { cfg.NoMetadata = flags.noMetadata },
		"streamdir":    func() { cfg.StreamDir = flags.streamDir },
		"index":        func() { cfg.IndexPath = flags.index },
		"workers":      func() { cfg.Workers = flags.workers },
		"iv-prefix":    func() { cfg.IVPrefix = flags.ivPrefix },
		"metrics-addr": func() { cfg.MetricsAddr = flags.metrics },
	}

	fs.Visit(func(f *pflag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})

	opts := &options{cfg: cfg, dbDir: args[0], listOnly: flags.list}

	if !opts.listOnly {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	if opts.key, err = config.DecodeKey(args[1]); err != nil {
		return nil, err
	}

	if opts.filter.Since, err = config.ParseSince(flags.since, now); err != nil {
		return nil, err
	}

	if flags.match != "" {
		if opts.filter.Match, err = regexp.Compile(flags.match); err != nil {
			return nil, fmt.Errorf("invalid --match pattern: %w", err)
		}
	}

	return opts, nil
}
