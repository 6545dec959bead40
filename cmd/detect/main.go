// detect runs YOLO detection benchmarks on an EdgeTPU or through onnxruntime.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cyclopcam/logs"

	"github.com/nvr-ai/detect-bench/airsim"
	"github.com/nvr-ai/detect-bench/capture"
	"github.com/nvr-ai/detect-bench/config"
	"github.com/nvr-ai/detect-bench/models"
	"github.com/nvr-ai/detect-bench/models/edgetpu"
	"github.com/nvr-ai/detect-bench/models/model"
	"github.com/nvr-ai/detect-bench/models/onnx"
	"github.com/nvr-ai/detect-bench/runner"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, parseErr := config.Parse(os.Args)
	var usage *config.UsageError
	if errors.As(parseErr, &usage) {
		fmt.Fprint(os.Stderr, usage.Usage)
		return config.ExitCode(parseErr)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Close()
	if cfg.Quiet {
		logger = runner.Quiet(logger)
	}
	if parseErr != nil {
		logger.Errorf("%v", parseErr)
		return config.ExitCode(parseErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	names, err := model.NamesOrDefault(logger, cfg.Names)
	if err != nil {
		logger.Errorf("%v", err)
		return 1
	}
	provider, err := onnx.ParseProvider(cfg.OrtProvider)
	if err != nil {
		logger.Errorf("%v", err)
		return 1
	}

	opts := model.DefaultOptions()
	opts.ConfThreshold = cfg.ConfThresh
	opts.IoUThreshold = cfg.IoUThresh

	logger.Infof("Loading %v", cfg.Model)
	m, err := models.NewModel(logger, models.NewModelArgs{
		Path:    cfg.Model,
		Names:   names,
		Options: opts,
		EdgeTPU: edgetpu.Options{
			Device:   cfg.EdgeTPUDevice,
			Threads:  cfg.Threads,
			AllowCPU: cfg.EdgeTPUCPU,
		},
		ONNX: onnx.Options{
			LibraryPath:    cfg.OrtLib,
			Provider:       provider,
			IntraOpThreads: cfg.Threads,
		},
	})
	if err != nil {
		logger.Errorf("%v", err)
		return 1
	}
	defer m.Close()

	r := runner.New(logger, m, cfg)
	if !cfg.Quiet {
		r.Progress = os.Stderr
	}
	r.OpenSource = func(device int) (runner.FrameSource, error) {
		cam, err := capture.Open(device)
		if err != nil {
			return nil, err
		}
		return cam, nil
	}
	r.OpenDisplay = func(name string) runner.Display {
		return capture.NewWindow(name)
	}
	r.DialSim = func(ctx context.Context, address string) (runner.SimCamera, error) {
		client, err := airsim.Dial(ctx, address)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	if err := r.Warmup(); err != nil {
		logger.Errorf("%v", err)
		return 1
	}
	if err := r.Run(ctx, cfg.Mode()); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("%v", err)
		return config.ExitCode(err)
	}
	return 0
}
