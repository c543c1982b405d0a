package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/alanbriolat/universal-saver"
	"github.com/alanbriolat/universal-saver/async"
	"github.com/alanbriolat/universal-saver/internal/fetch"
	"github.com/alanbriolat/universal-saver/internal/materialize"
	"github.com/alanbriolat/universal-saver/internal/session"
	_ "github.com/alanbriolat/universal-saver/platforms"
)

func main() {
	cfg, err := universal_saver.LoadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	zap.RedirectStdLog(logger)
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = universal_saver.WithLogger(ctx, logger)

	app := &cli.App{
		Name:      "universal-saver",
		Usage:     fmt.Sprintf("save videos and photos from %s", universal_saver.DefaultPlatformRegistry.Describe()),
		ArgsUsage: "[URL...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "target",
				Value: cfg.DownloadDir,
				Usage: "save downloaded files to `DIR`",
			},
			&cli.StringFlag{
				Name:  "api-url",
				Value: cfg.APIURL,
				Usage: "use the download service at `URL`",
			},
			&cli.BoolFlag{
				Name:  "paste",
				Usage: "download the link on the clipboard",
			},
		},
		Action: func(c *cli.Context) error {
			return run(ctx, cfg, c)
		},
		HideHelpCommand: true,
	}

	result := async.Run(func() error { return app.Run(os.Args) })

	select {
	case err = <-result:
		if err != nil {
			logger.Fatal(err.Error())
		}
	case <-ctx.Done():
		logger.Info("Exiting...")
		stop()
		// Give an attempt in flight a moment to notice cancellation and clean up
		select {
		case <-result:
		case <-time.After(time.Second):
		}
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(l)
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return config.Build()
}

func run(ctx context.Context, cfg *universal_saver.Config, c *cli.Context) error {
	client, err := fetch.NewClient(c.String("api-url"), fetch.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return err
	}
	sesConfig := session.DefaultConfig
	sesConfig.Requester = client
	sesConfig.Materializer = materialize.New(materialize.WithTargetDir(c.String("target")))
	sesConfig.SuccessDisplay = cfg.SuccessDisplay
	ses, err := session.New(sesConfig, ctx)
	if err != nil {
		return err
	}

	events, err := ses.Subscribe()
	if err != nil {
		return err
	}
	r := newRenderer(c.App.Writer)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.run(events)
	}()
	defer func() {
		ses.Close()
		wg.Wait()
	}()

	d := &driver{ctx: ctx, session: ses, renderer: r}
	switch {
	case c.Bool("paste"):
		if d.paste(true) {
			d.submit(ses.Input())
		}
		for _, source := range c.Args().Slice() {
			d.submit(source)
		}
	case c.Args().Present():
		for _, source := range c.Args().Slice() {
			d.submit(source)
		}
	default:
		d.interactive(c.App.Reader)
	}
	return d.failures.ErrorOrNil()
}

// driver feeds user actions into the session and collects the failures.
type driver struct {
	ctx      context.Context
	session  *session.Session
	renderer *renderer
	failures *multierror.Error
}

func (d *driver) submit(input string) {
	if d.ctx.Err() != nil {
		return
	}
	d.session.SetInput(input)
	ch, err := d.session.Submit(d.ctx)
	if err != nil {
		d.failures = multierror.Append(d.failures, err)
		return
	}
	outcome := <-ch
	d.renderer.waitSettled(outcome.AttemptID)
	if outcome.Err != nil {
		d.failures = multierror.Append(d.failures, fmt.Errorf("%s: %w", strings.TrimSpace(input), outcome.Err))
	}
}

// paste reads the clipboard into the session input. A failure only counts towards the exit status if required.
func (d *driver) paste(required bool) bool {
	if err := d.session.Paste(d.ctx); err != nil {
		d.renderer.notice(session.MessageFor(err))
		if required {
			d.failures = multierror.Append(d.failures, err)
		}
		return false
	}
	d.renderer.notice(fmt.Sprintf("Pasted: %s", d.session.Input()))
	return true
}

func (d *driver) interactive(in io.Reader) {
	d.renderer.notice("Paste a link and press Enter, \"paste\" to use the clipboard, or \"quit\" to exit.")
	scanner := bufio.NewScanner(in)
	for d.renderer.prompt(); scanner.Scan(); d.renderer.prompt() {
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "quit", "exit":
			return
		case "paste":
			if d.paste(false) {
				d.submit(d.session.Input())
			}
		default:
			d.submit(line)
		}
		if d.ctx.Err() != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		d.failures = multierror.Append(d.failures, err)
	}
}
