package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vulntor/assessor/cmd/assessor/internal/format"
	"github.com/vulntor/assessor/pkg/policy"
	"github.com/vulntor/assessor/pkg/stringutil"
)

const maxTextWidth = 100

// fileHit is a classified line together with the file it came from.
type fileHit struct {
	File       string `json:"file" yaml:"file"`
	policy.Hit `yaml:",inline"`
}

func newClassifyCommand() *cobra.Command {
	var (
		customFile string
		watch      bool
		kinds      []string
	)

	cmd := &cobra.Command{
		Use:   "classify <file>... ",
		Short: "Classify configuration lines into API, servlet, JDBC, JNDI and endpoint categories",
		Long: `Read text files line by line and print every line that falls into at
least one category. "-" reads standard input.

The custom category matches the literal patterns of policy.custom_patterns
and of --custom-file (one pattern per line, # starts a comment). With
--watch the files are classified again each time the pattern file changes.`,
		Example: `  # Classify a Tomcat context file
  assessor classify /opt/tomcat/conf/context.xml

  # Only JDBC and custom hits, with extra patterns
  assessor classify app.properties --kind jdbc --kind custom --custom-file patterns.txt

  # Re-run when the pattern file is edited
  assessor classify app.properties --custom-file patterns.txt --watch`,
		GroupID: "assess",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			logger := log.With().Str("command", "classify").Logger()

			only := make([]policy.Kind, 0, len(kinds))
			for _, k := range kinds {
				parsed, err := policy.ParseKind(k)
				if err != nil {
					return report(cmd, err)
				}
				only = append(only, parsed)
			}
			if watch && customFile == "" {
				return report(cmd, errors.New("--watch requires --custom-file"))
			}
			if watch && slices.Contains(args, "-") {
				return report(cmd, errors.New("--watch cannot read standard input"))
			}

			base := loadedConfig(ctx).Policy.CustomPatterns
			set := policy.NewSet()
			run := func(extra *policy.Custom) error {
				custom := policy.NewCustom(append(slices.Clone(base), extra.Patterns()...))
				hits, err := classifyFiles(ctx, cmd, set.WithCustom(custom), args, only)
				if err != nil {
					return err
				}
				return printHits(getFormatter(cmd), hits)
			}

			if !watch {
				var extra *policy.Custom
				if customFile != "" {
					loaded, err := policy.LoadCustomFile(customFile)
					if err != nil {
						return report(cmd, err)
					}
					extra = loaded
				}
				return report(cmd, run(extra))
			}

			watcher, err := policy.NewCustomWatcher(customFile)
			if err != nil {
				return report(cmd, err)
			}
			if err := run(watcher.Current()); err != nil {
				return report(cmd, err)
			}
			watcher.OnChange(func(c *policy.Custom) {
				logger.Info().Int("patterns", len(c.Patterns())).Msg("Custom patterns reloaded")
				if err := run(c); err != nil {
					logger.Error().Err(err).Msg("Classification failed")
				}
			})
			if err := watcher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return report(cmd, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&customFile, "custom-file", "", "File of literal patterns for the custom category")
	cmd.Flags().BoolVar(&watch, "watch", false, "Classify again whenever --custom-file changes")
	cmd.Flags().StringArrayVar(&kinds, "kind", nil, "Only report lines of this category (repeatable)")

	return cmd
}

func classifyFiles(ctx context.Context, cmd *cobra.Command, set *policy.Set, files []string, only []policy.Kind) ([]fileHit, error) {
	var out []fileHit
	for _, name := range files {
		var r io.Reader
		if name == "-" {
			r = cmd.InOrStdin()
		} else {
			f, err := os.Open(name)
			if err != nil {
				return out, fmt.Errorf("open %s: %w", name, err)
			}
			defer f.Close()
			r = f
		}
		hits, err := set.Scan(ctx, r)
		if err != nil {
			return out, fmt.Errorf("classify %s: %w", name, err)
		}
		for _, h := range hits {
			if len(only) > 0 && !slices.ContainsFunc(h.Kinds, func(k policy.Kind) bool { return slices.Contains(only, k) }) {
				continue
			}
			out = append(out, fileHit{File: name, Hit: h})
		}
	}
	return out, nil
}

func printHits(f format.Formatter, hits []fileHit) error {
	if f.Mode() != format.ModeTable {
		if hits == nil {
			hits = []fileHit{}
		}
		return f.Print(hits)
	}
	rows := make([][]string, 0, len(hits))
	for _, h := range hits {
		names := make([]string, len(h.Kinds))
		for i, k := range h.Kinds {
			names[i] = string(k)
		}
		rows = append(rows, []string{h.File, strconv.Itoa(h.Line), strings.Join(names, ","), stringutil.Ellipsis(h.Text, maxTextWidth)})
	}
	if err := f.PrintTable([]string{"file", "line", "kinds", "text"}, rows); err != nil {
		return err
	}
	return f.PrintSummary(fmt.Sprintf("%d matching line(s)", len(hits)))
}
