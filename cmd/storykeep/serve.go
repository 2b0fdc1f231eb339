package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pders01/storykeep/internal/debuglog"
	"github.com/pders01/storykeep/internal/gateway"
	"github.com/pders01/storykeep/internal/worker"
)

var (
	serveAddr  string
	serveQuiet bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the worker gateway with background sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !serveQuiet {
			showBanner()
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return withApp(ctx, serve)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides gateway.addr)")
	serveCmd.Flags().BoolVarP(&serveQuiet, "quiet", "q", false, "Skip startup banner")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, a *app) error {
	log := debuglog.Component("serve")

	eff, err := a.worker.Dispatch(ctx, worker.Install{})
	if err != nil {
		return err
	}
	if eff.Install != nil {
		log.With("cached", len(eff.Install.Cached)).
			With("failed", len(eff.Install.Failed)).
			Infof("worker installed")
	}

	addr := a.cfg.Gateway.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := gateway.New(addr, a.origin, a.worker, a.manager)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.dispatcher.Run(gctx) })
	g.Go(func() error {
		if forceOffline {
			a.monitor.SetOnline(false)
			<-gctx.Done()
			return gctx.Err()
		}
		return a.prober.Run(gctx)
	})
	g.Go(func() error { return srv.ListenAndServe(gctx) })

	printInfo("Serving on http://" + addr)

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
