package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/otofune/hlsfeed"
	"github.com/otofune/hlsfeed/config"
	"github.com/otofune/hlsfeed/ctxdebugfs"
	"github.com/otofune/hlsfeed/ctxlogger"
	"github.com/otofune/hlsfeed/feed"
	"github.com/otofune/hlsfeed/handler/fshandler"
	"github.com/otofune/hlsfeed/handler/pipe"
	"github.com/otofune/hlsfeed/repeahttp"
	"github.com/otofune/hlsfeed/resolver"
	"github.com/otofune/hlsfeed/server"
	"golang.org/x/sync/errgroup"
)

// echoHandler only logs segments; used when there is no output.
type echoHandler struct{}

func (echoHandler) Receive(ctx context.Context, seg *hlsfeed.MediaSegment) error {
	ctxlogger.ExtractLogger(ctx).Printf("segment %d/%d %s", seg.DiscontinuitySequence, seg.Sequence, seg.URI)
	return nil
}

func variantFilter(name string) hlsfeed.FilterMediaPlaylistVariantFn {
	if name == "all" {
		return hlsfeed.AllVariants
	}
	return hlsfeed.BestBandwidth
}

func newHandler(cfg *config.Config, client *repeahttp.Client) (hlsfeed.PlayHandler, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	switch cfg.Output.Path {
	case "", "none":
		return echoHandler{}, noop, nil
	case "-":
		return pipe.New(client, os.Stdout, 0), noop, nil
	default:
		h, err := fshandler.New(client, cfg.Output.Path, cfg.Output.Parallelism)
		if err != nil {
			return nil, nil, err
		}
		return h, h.Close, nil
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := ctxlogger.ExtractLogger(ctx)

	if cfg.Output.DebugDir != "" {
		fs, err := ctxdebugfs.NewDirFS(cfg.Output.DebugDir)
		if err != nil {
			return err
		}
		ctx = ctxdebugfs.WithDebugFS(ctx, fs)
	}

	id, err := cfg.Identity()
	if err != nil {
		return err
	}
	logger.Printf("following feed %s at %s", id, cfg.Gateway)

	hc := &http.Client{}
	reader := feed.NewClient(cfg.Gateway, hc).FeedReader(id, cfg.Feed.Type)
	state := resolver.NewState()
	refresher := resolver.NewRefresher(
		resolver.New(reader, cfg.Player.PathPrefix),
		state,
		time.Duration(cfg.Player.RefreshInterval),
	)

	client := repeahttp.NewClient(hc, cfg.GatewayURL())
	player := hlsfeed.NewPlayer(client, time.Duration(cfg.Player.RequestTimeout))

	handler, closeHandler, err := newHandler(cfg, client)
	if err != nil {
		return err
	}

	// gctx ends on a signal, on the first error, or once playback is over.
	gctx, finish := context.WithCancel(ctx)
	defer finish()
	eg, gctx := errgroup.WithContext(gctx)

	var srv *server.Server
	if cfg.Server.Listen != "" {
		srv, err = server.New(server.Config{
			ListenAddr: cfg.Server.Listen,
			Gateway:    cfg.GatewayURL(),
			PathPrefix: cfg.Player.PathPrefix,
			State:      state,
			Logger:     ctxlogger.Component(ctx, "server"),
		})
		if err != nil {
			return err
		}
		eg.Go(srv.Start)
		eg.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	ses, err := hlsfeed.StartPlayback(gctx, hlsfeed.PlaybackOptions{
		Refresher: refresher,
		Player:    player,
		Poster:    cfg.Player.Poster,
		Filter:    variantFilter(cfg.Player.Variant),
		Handler:   handler,
	})
	if err != nil {
		finish()
		// a listen error cancels gctx, report it rather than the canceled resolution
		if werr := eg.Wait(); werr != nil {
			return werr
		}
		return err
	}
	if srv != nil {
		srv.SetSource(ses.Source)
	}

	eg.Go(func() error {
		defer finish()
		if err := ses.Wait(); err != nil {
			return err
		}
		logger.Printf("playback finished")
		return closeHandler(context.Background())
	})
	eg.Go(func() error {
		<-gctx.Done()
		_ = ses.Close()
		return nil
	})

	if err := eg.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func main() {
	var (
		configPath string
		listen     string
		output     string
	)
	flag.StringVar(&configPath, "config", "", "path to a YAML config file")
	flag.StringVar(&listen, "listen", "", "HTTP listen address, overrides the config")
	flag.StringVar(&output, "out", "", `"-" for stdout, a directory to record into, or "none"`)
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if output != "" {
		cfg.Output.Path = output
	}

	logger := ctxlogger.New(ctxlogger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})
	logger.Printf("hlsfeed %s", version())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = ctxlogger.WithLogger(ctx, logger)

	if err := run(ctx, cfg); err != nil {
		logger.Fatalf("%v", err)
	}
}
