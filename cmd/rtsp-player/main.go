package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	rtsp "github.com/cesbo/go-rtsp-player"
	"github.com/cesbo/go-rtsp-player/internal/config"
	"github.com/cesbo/go-rtsp-player/rtph264"
)

func main() {
	var (
		configPath string
		url        string
		output     string
	)

	flag.StringVar(&configPath, "config", "", "path to the yaml config file")
	flag.StringVar(&url, "url", "", "stream url rtsp://A.B.C.D[:port][/path]")
	flag.StringVar(&output, "output", "", "output file for H.264 stream, - for stdout")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	if url != "" {
		cfg.URL = url
	}
	if output != "" {
		cfg.Output = output
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	log := cfg.NewLogger(os.Stderr)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("failed to play")
		os.Exit(1)
	}
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return os.Stdout, nil
	}

	return os.Create(path)
}

func run(cfg *config.Config, log *logrus.Logger) error {
	out, err := openOutput(cfg.Output)
	if err != nil {
		return err
	}
	defer out.Close()

	player := &rtsp.Player{
		UserAgent:          cfg.Player.UserAgent,
		ConnectTimeout:     cfg.Player.ConnectTimeout,
		KeepAlive:          cfg.Player.KeepAlive,
		ClientPort:         cfg.Player.ClientPort,
		WriteParameterSets: cfg.Player.WriteParameterSets,
		Sink:               rtph264.NewWriterSink(bufio.NewWriter(out)),
		Logger:             log,
	}

	if err := player.Play(cfg.URL); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithField("signal", sig).Info("received signal, stopping")
	case <-player.Done():
		log.WithField("state", player.State()).Warn("session ended")
	}

	player.Stop()

	return nil
}
