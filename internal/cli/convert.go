package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inkdot-dev/inkpress/pkg/layout"
	"github.com/inkdot-dev/inkpress/pkg/pipeline"
)

// convertOpts holds the command-line flags for the convert command.
type convertOpts struct {
	output   string // output file path (derived from input if empty)
	profile  string // TOML typography profile path
	fontPath string // custom TTF font path
	language string // hyphenation language override
	noHyphen bool   // disable soft hyphen insertion
	refresh  bool   // bypass cache reads
	noCache  bool   // disable caching entirely
	redisURL string // shared redis cache instead of the file cache

	landscape bool          // rotate the page geometry
	cfg       layout.Config // typography flags, merged over profile and defaults
}

// convertCommand creates the convert command, the main entry point of the
// tool. Typography can come from three layers: built-in defaults, a TOML
// profile, and explicit flags, each overriding the previous.
func (c *CLI) convertCommand() *cobra.Command {
	def := layout.Default()
	opts := convertOpts{cfg: def}

	cmd := &cobra.Command{
		Use:   "convert <book.epub>",
		Short: "Convert an EPUB into an XTC page container",
		Long: `Convert an EPUB into a pre-rendered XTC page container.

The book is reflowed with native typesetting: greedy line breaking with
soft hyphenation, optional justification, dithered images and a generated
table of contents. Output geometry and typography default to a 480x800
portrait e-ink panel and can be tuned per flag or via a TOML profile.

Examples:
  inkpress convert book.epub
  inkpress convert book.epub -o /media/reader/book.xtc
  inkpress convert book.epub --profile large-print.toml --font serif.ttf
  inkpress convert book.epub --landscape --bit-depth 8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, &opts)
			if err != nil {
				return err
			}
			return c.runConvert(cmd.Context(), args[0], cfg, &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (input name with .xtc if empty)")
	cmd.Flags().StringVar(&opts.profile, "profile", "", "TOML typography profile")
	cmd.Flags().StringVar(&opts.fontPath, "font", "", "custom TTF font file")
	cmd.Flags().StringVar(&opts.language, "language", "", "hyphenation language (overrides book metadata)")
	cmd.Flags().BoolVar(&opts.noHyphen, "no-hyphenation", false, "disable soft hyphenation")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass cache")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable caching")
	cmd.Flags().StringVar(&opts.redisURL, "redis-url", "", "use a shared redis cache (redis://...)")

	cmd.Flags().IntVar(&opts.cfg.PageWidth, "width", def.PageWidth, "page width in pixels (portrait)")
	cmd.Flags().IntVar(&opts.cfg.PageHeight, "height", def.PageHeight, "page height in pixels (portrait)")
	cmd.Flags().BoolVar(&opts.landscape, "landscape", false, "landscape orientation")
	cmd.Flags().Float64Var(&opts.cfg.FontSize, "font-size", def.FontSize, "body font size in points")
	cmd.Flags().IntVar(&opts.cfg.FontWeight, "font-weight", def.FontWeight, "body font weight (100-900)")
	cmd.Flags().Float64Var(&opts.cfg.LineHeight, "line-height", def.LineHeight, "line height multiplier")
	cmd.Flags().IntVar(&opts.cfg.Margin, "margin", def.Margin, "horizontal margin in pixels")
	cmd.Flags().IntVar(&opts.cfg.TopPadding, "top-padding", def.TopPadding, "top padding in pixels")
	cmd.Flags().IntVar(&opts.cfg.BottomPadding, "bottom-padding", def.BottomPadding, "bottom padding in pixels")
	cmd.Flags().BoolVar(&opts.cfg.Justify, "justify", def.Justify, "justify text")
	cmd.Flags().BoolVar(&opts.cfg.BreakChapters, "break-chapters", def.BreakChapters, "start chapters on a fresh page")
	cmd.Flags().Float64Var(&opts.cfg.HyphenTolerance, "hyphen-tolerance", def.HyphenTolerance, "hyphenation zone as fraction of line width")
	cmd.Flags().Float64Var(&opts.cfg.RenderScale, "scale", def.RenderScale, "text supersampling factor")
	cmd.Flags().IntVar(&opts.cfg.BitDepth, "bit-depth", def.BitDepth, "output bit depth (1 or 8)")
	cmd.Flags().BoolVar(&opts.cfg.GenerateTOC, "toc", def.GenerateTOC, "generate table of contents pages")

	return cmd
}

// flagFields maps typography flag names to copy functions, used to let
// explicitly set flags win over profile values.
var flagFields = map[string]func(dst, src *layout.Config){
	"width":            func(d, s *layout.Config) { d.PageWidth = s.PageWidth },
	"height":           func(d, s *layout.Config) { d.PageHeight = s.PageHeight },
	"font-size":        func(d, s *layout.Config) { d.FontSize = s.FontSize },
	"font-weight":      func(d, s *layout.Config) { d.FontWeight = s.FontWeight },
	"line-height":      func(d, s *layout.Config) { d.LineHeight = s.LineHeight },
	"margin":           func(d, s *layout.Config) { d.Margin = s.Margin },
	"top-padding":      func(d, s *layout.Config) { d.TopPadding = s.TopPadding },
	"bottom-padding":   func(d, s *layout.Config) { d.BottomPadding = s.BottomPadding },
	"justify":          func(d, s *layout.Config) { d.Justify = s.Justify },
	"break-chapters":   func(d, s *layout.Config) { d.BreakChapters = s.BreakChapters },
	"hyphen-tolerance": func(d, s *layout.Config) { d.HyphenTolerance = s.HyphenTolerance },
	"scale":            func(d, s *layout.Config) { d.RenderScale = s.RenderScale },
	"bit-depth":        func(d, s *layout.Config) { d.BitDepth = s.BitDepth },
	"toc":              func(d, s *layout.Config) { d.GenerateTOC = s.GenerateTOC },
}

// resolveConfig merges defaults, the optional profile and explicit flags
// into the final typography configuration.
func resolveConfig(cmd *cobra.Command, opts *convertOpts) (layout.Config, error) {
	cfg := layout.Default()
	if opts.profile != "" {
		loaded, err := loadProfile(opts.profile)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	for name, apply := range flagFields {
		if cmd.Flags().Changed(name) {
			apply(&cfg, &opts.cfg)
		}
	}
	if opts.landscape {
		cfg.Orientation = layout.Landscape
	}
	if opts.fontPath != "" {
		data, err := os.ReadFile(opts.fontPath)
		if err != nil {
			return cfg, fmt.Errorf("read font: %w", err)
		}
		cfg.FontData = data
	}
	return cfg, cfg.Validate()
}

// runConvert executes the pipeline and writes the container to disk.
func (c *CLI) runConvert(ctx context.Context, input string, cfg layout.Config, opts *convertOpts) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read epub: %w", err)
	}

	runner, err := c.newRunner(opts.noCache, opts.redisURL)
	if err != nil {
		return err
	}
	defer runner.Close()

	spin := newSpinner(ctx, fmt.Sprintf("Converting %s", filepath.Base(input)))
	spin.Start()

	prog := newProgress(c.Logger)
	res, err := runner.Execute(ctx, pipeline.Options{
		EPUB:               data,
		Source:             filepath.Base(input),
		Layout:             cfg,
		Language:           opts.language,
		DisableHyphenation: opts.noHyphen,
		Refresh:            opts.refresh,
	})
	if err != nil {
		spin.StopWithError(fmt.Sprintf("Conversion failed: %v", err))
		return err
	}
	spin.Stop()
	prog.done(fmt.Sprintf("Converted %d pages", res.Stats.PageCount))

	for _, w := range res.Warnings {
		printWarning("%v", w)
	}

	output := opts.output
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + ".xtc"
	}
	if err := os.WriteFile(output, res.Container, 0o644); err != nil {
		return fmt.Errorf("write container: %w", err)
	}

	printSuccess("%s", res.Book.Title)
	printStats(res.Stats.ChapterCount, res.Stats.PageCount, res.CacheInfo.ContainerFromCache)
	printFile(output)
	printNextStep("Preview it", fmt.Sprintf("%s preview %s", appName, input))
	return nil
}
