package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/equipment-scanner/internal/allocation"
	"github.com/zombor/equipment-scanner/internal/capture"
	"github.com/zombor/equipment-scanner/internal/equipment"
	"github.com/zombor/equipment-scanner/internal/labeltext"
	"github.com/zombor/equipment-scanner/internal/ocr"
	"github.com/zombor/equipment-scanner/internal/scanner"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("equipment-scanner")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		dbPath       = fs.StringLong("db", "equipment-scanner.db", "Database file path")
		ocrBackend   = fs.StringLong("ocr", "tesseract", "OCR backend: 'tesseract', 'gemini' or 'ollama'")
		languages    = fs.StringLong("ocr-languages", "por,eng", "Comma separated OCR languages")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		lookupURL    = fs.StringLong("lookup-url", "", "Base URL of the allocation lookup API (allocation mode is disabled when empty)")
		lookupToken  = fs.StringLong("lookup-token", "", "Bearer token for the allocation lookup API")
		camera       = fs.StringLong("camera", "", "Video device index or label photo path (frames are uploaded by the client when empty)")
		userCamera   = fs.IntLong("user-camera", -1, "Video device index of the user facing camera (-1 uses --camera)")
		facing       = fs.StringLong("facing", string(capture.FacingEnvironment), "Preferred camera: 'environment' or 'user'")
		scanInterval = fs.IntLong("scan-interval-ms", int(scanner.DefaultInterval/time.Millisecond), "Delay between automatic reads in milliseconds")
		noTagFromRG  = fs.BoolLong("no-tag-from-rg", "Do not derive the tag from the RG when none is found on the label")
		authUser     = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("EQUIPMENT_SCANNER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx := context.Background()

	// Initialize database
	slog.Info("Initializing database...")
	db, err := equipment.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// The OCR backend is loaded on first use and retried after failures
	var factory ocr.Factory
	switch *ocrBackend {
	case "tesseract":
		slog.Info("Using Tesseract OCR...")
		factory = func(ctx context.Context) (ocr.Recognizer, error) {
			return ocr.NewTesseract()
		}
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Using Gemini OCR...", "model", *geminiModel)
		factory = func(ctx context.Context) (ocr.Recognizer, error) {
			return ocr.NewGemini(ctx, apiKey, *geminiModel)
		}
	case "ollama":
		slog.Info("Using Ollama OCR...", "url", *ollamaURL, "model", *ollamaModel)
		factory = func(ctx context.Context) (ocr.Recognizer, error) {
			return ocr.NewOllama(*ollamaURL, *ollamaModel)
		}
	default:
		slog.Error("Invalid OCR backend", "backend", *ocrBackend, "valid", "tesseract, gemini or ollama")
		os.Exit(1)
	}
	loader := ocr.NewLoader(*ocrBackend, factory)
	defer loader.Close()

	extractor := labeltext.NewExtractor()
	if *noTagFromRG {
		extractor.TagFallback = nil
	}

	cam, err := parseCamera(*camera, *userCamera)
	if err != nil {
		slog.Error("Invalid camera", "camera", *camera, "error", err)
		os.Exit(1)
	}

	template := scanner.Config{
		Camera:     cam,
		Facing:     capture.Facing(*facing),
		Recognizer: loader,
		Extractor:  extractor,
		Languages:  splitList(*languages),
		Interval:   time.Duration(*scanInterval) * time.Millisecond,
	}

	var looker allocation.Looker
	if *lookupURL != "" {
		slog.Info("Allocation lookup enabled", "url", *lookupURL)
		looker = allocation.NewClient(*lookupURL, *lookupToken)
	}

	// Initialize service
	service := equipment.NewService(db, template, looker)
	defer service.Close()

	// Initialize server
	basicAuth := equipment.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := equipment.NewServer(service, basicAuth)

	// Warm the OCR backend up so the first scan does not pay for it
	go func() {
		if _, err := loader.Get(ctx); err != nil {
			slog.Warn("OCR backend not ready yet", "backend", loader.Name(), "error", err)
		}
	}()

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

// parseCamera turns the --camera flag into a Camera. Nil means frames are
// uploaded by the client.
func parseCamera(value string, userDevice int) (capture.Camera, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if device, err := strconv.Atoi(value); err == nil {
		if device < 0 {
			return nil, nil
		}
		cam := capture.GocvCamera{Default: device}
		if userDevice >= 0 {
			cam.Devices = map[capture.Facing]int{capture.FacingUser: userDevice}
		}
		return cam, nil
	}
	if _, err := os.Stat(value); err != nil {
		return nil, err
	}
	return capture.FileCamera{Path: value}, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
