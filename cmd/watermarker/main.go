package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/watermarker"
	"github.com/menta2k/watermarker/internal/config"
	"github.com/menta2k/watermarker/internal/utils"
	"github.com/menta2k/watermarker/pkg/client"
	"github.com/menta2k/watermarker/pkg/detection"
	"github.com/menta2k/watermarker/pkg/llamacpp"
	"github.com/menta2k/watermarker/pkg/ollama"
	"github.com/menta2k/watermarker/pkg/processing"
	"github.com/menta2k/watermarker/pkg/types"
)

func main() {
	var in, mark, outDir, configPath string
	var mode, pos, rescale, style string
	var opacity, proportion float64
	var margin, padding int
	var prefix, suffix, format string
	var quality int
	var lossless bool
	var workers int
	var recursive bool
	var backend, url, model string
	var sendFmt string
	var sendSize int
	var sendQ int
	var debug bool
	var check bool
	var logLevel string

	flag.StringVar(&in, "in", "", "input image or directory (jpg/png/webp/gif/tif/bmp)")
	flag.StringVar(&mark, "mark", "", "watermark image path")
	flag.StringVar(&outDir, "out", "output", "output directory")
	flag.StringVar(&configPath, "config", "", "config file path (default: $WATERMARKER_CONFIG or ~/.config/watermarker/config.json)")

	flag.StringVar(&mode, "mode", "SINGLE", "watermark mode: SINGLE|TILE")
	flag.StringVar(&pos, "pos", "LOWER_RIGHT", "position: UPPER_LEFT|UPPER_RIGHT|LOWER_LEFT|LOWER_RIGHT|MIDDLE|AUTO|x,y")
	flag.Float64Var(&opacity, "opacity", 0.5, "watermark opacity (0.0-1.0)")
	flag.Float64Var(&proportion, "proportion", 0.1, "watermark size relative to base image (0.0-1.0)")
	flag.StringVar(&rescale, "rescale", "LINEAR", "rescale mode: LINEAR (width) | AREA")
	flag.IntVar(&margin, "margin", 0, "margin from the edges for corner positions (px)")
	flag.IntVar(&padding, "padding", 50, "padding between tiles (px)")
	flag.StringVar(&style, "style", "GRID", "tile style: GRID|CHECKER")

	flag.StringVar(&prefix, "prefix", "", "output filename prefix")
	flag.StringVar(&suffix, "suffix", "", "output filename suffix")
	flag.StringVar(&format, "format", "", "output format: jpg|png|webp|gif|tif|bmp (default: keep input format)")
	flag.IntVar(&quality, "quality", 95, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&lossless, "lossless", false, "WebP output lossless mode")

	flag.IntVar(&workers, "workers", 1, "parallel workers for directory input")
	flag.BoolVar(&recursive, "recursive", false, "recurse into subdirectories")

	flag.StringVar(&backend, "backend", "local", "AUTO placement backend: local|ollama|llamacpp")
	flag.StringVar(&url, "url", "", "vision server URL (defaults: ollama=http://localhost:11435/api/chat, llamacpp=http://localhost:8080)")
	flag.StringVar(&model, "model", "qwen2.5vl:7b", "vision model name")
	flag.StringVar(&sendFmt, "sendfmt", "jpg", "format sent to the vision model: jpg|png")
	flag.IntVar(&sendSize, "sendsize", 1536, "max long side sent to the vision model (px), 0=original")
	flag.IntVar(&sendQ, "sendq", 85, "JPEG quality for image sent to the vision model (1-100)")

	flag.BoolVar(&debug, "debug", false, "write placement overlay images next to each output")
	flag.BoolVar(&check, "check", false, "probe the vision backend with -in and exit")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug|info|warn|error")

	flag.Parse()
	if in == "" || (mark == "" && !check) {
		log.Fatalf("usage: %s -in input.jpg|dir -mark logo.png [-mode SINGLE|TILE] [-pos LOWER_RIGHT|AUTO|x,y] [-opacity 0.5] [-out outdir]", filepath.Base(os.Args[0]))
	}

	// Configuration layering: defaults, then the config file, then any
	// flag the user set explicitly.
	cfg := config.Default()
	if configPath == "" {
		if p := config.GetConfigPath(); utils.FileExists(p) {
			configPath = p
		}
	}
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = loaded
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Watermark.Mode = mode
		case "pos":
			cfg.Watermark.Position = pos
		case "opacity":
			cfg.Watermark.Opacity = opacity
		case "proportion":
			cfg.Watermark.Proportion = proportion
		case "rescale":
			cfg.Watermark.RescaleMode = rescale
		case "margin":
			cfg.Watermark.Margin = margin
		case "padding":
			cfg.Watermark.TilePadding = padding
		case "style":
			cfg.Watermark.TileStyle = style
		case "out":
			cfg.Output.OutputDir = outDir
		case "prefix":
			cfg.Output.Prefix = prefix
		case "suffix":
			cfg.Output.Suffix = suffix
		case "format":
			cfg.Output.Format = format
		case "quality":
			cfg.Output.Quality = quality
		case "lossless":
			cfg.Output.Lossless = lossless
		case "workers":
			cfg.Batch.Workers = workers
		case "recursive":
			cfg.Batch.Recursive = recursive
		case "backend":
			cfg.Vision.Backend = backend
		case "url":
			cfg.Vision.URL = url
		case "model":
			cfg.Vision.Model = model
		case "sendfmt":
			cfg.Vision.SendFormat = sendFmt
		case "sendsize":
			cfg.Vision.SendMaxDim = sendSize
		case "sendq":
			cfg.Vision.SendQuality = sendQ
		}
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if check {
		checkVision(ctx, cfg, in)
		return
	}

	opts, err := watermarker.OptionsFromConfig(cfg)
	if err != nil {
		log.Fatal(err)
	}
	if debug {
		opts.DebugSuffix = "_debug"
	}

	w, err := watermarker.New(mark, opts)
	if err != nil {
		log.Fatal(err)
	}

	logger := logrus.New()
	lvl, err := logrus.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("invalid log level %q: %v", logLevel, err)
	}
	logger.SetLevel(lvl)
	w.SetLogger(logger)

	if opts.Position.Anchor == types.AnchorAuto && cfg.Vision.Backend != "local" {
		suggester, err := watermarker.NewSuggester(cfg.Vision)
		if err != nil {
			log.Fatal(err)
		}
		w.SetSuggester(suggester)
	}

	summary, err := w.Run(ctx, in)
	if err != nil {
		log.Fatal(err)
	}
	if summary.Failed > 0 {
		os.Exit(1)
	}
}

// checkVision sends the input image with a trivial prompt to verify the
// model server is reachable before a long batch run.
func checkVision(ctx context.Context, cfg *config.Config, in string) {
	var visionClient client.VisionClient
	var err error

	switch cfg.Vision.Backend {
	case "ollama":
		serverURL := cfg.Vision.URL
		if serverURL == "" {
			serverURL = watermarker.DefaultOllamaURL
		}
		visionClient, err = ollama.NewClient(serverURL)
	case "llamacpp":
		serverURL := cfg.Vision.URL
		if serverURL == "" {
			serverURL = watermarker.DefaultLlamaCppURL
		}
		visionClient, err = llamacpp.NewClient(serverURL)
	default:
		log.Fatalf("backend %q has no connectivity check (use 'ollama' or 'llamacpp')", cfg.Vision.Backend)
	}
	if err != nil {
		log.Fatalf("failed to create vision client: %v", err)
	}

	processor := processing.NewProcessor()
	img, err := processor.LoadImage(in)
	if err != nil {
		log.Fatal(err)
	}
	imgB64, err := processor.PrepareImageForModel(img, cfg.Vision.SendFormat, cfg.Vision.SendMaxDim, cfg.Vision.SendQuality)
	if err != nil {
		log.Fatal(err)
	}

	reply, err := detection.NewDetector(visionClient).TestVision(ctx, cfg.Vision.Model, imgB64)
	if err != nil {
		log.Fatalf("vision check failed: %v", err)
	}
	log.Printf("vision check ok: %s", reply)
}
