package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkdot-dev/inkpress/internal/server"
	"github.com/inkdot-dev/inkpress/pkg/layout"
)

// serveCommand creates the serve command running the preview HTTP API.
func (c *CLI) serveCommand() *cobra.Command {
	opts := convertOpts{}
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve EPUB conversion and preview over HTTP",
		Long: `Run the preview HTTP API. Uploaded books are held in memory and can be
paged through as PNGs, edited chapter by chapter, and downloaded as XTC
containers.

Examples:
  inkpress serve
  inkpress serve --addr :9000 --redis-url redis://localhost:6379/0
  curl -X POST --data-binary @book.epub localhost:8080/books`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, &opts)
			if err != nil {
				return err
			}
			return c.runServe(cmd.Context(), addr, cfg, &opts)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.profile, "profile", "", "TOML typography profile")
	cmd.Flags().StringVar(&opts.fontPath, "font", "", "custom TTF font file")
	cmd.Flags().BoolVar(&opts.landscape, "landscape", false, "landscape orientation")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable caching")
	cmd.Flags().StringVar(&opts.redisURL, "redis-url", "", "use a shared redis cache (redis://...)")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, addr string, cfg layout.Config, opts *convertOpts) error {
	runner, err := c.newRunner(opts.noCache, opts.redisURL)
	if err != nil {
		return err
	}
	defer runner.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(runner, c.Logger, cfg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.Logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
