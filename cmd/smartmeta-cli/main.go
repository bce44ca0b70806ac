package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Caia-Tech/smartmeta/internal/llm"
	"github.com/Caia-Tech/smartmeta/internal/processing"
	"github.com/Caia-Tech/smartmeta/internal/storage"
	"github.com/Caia-Tech/smartmeta/internal/temporal/workflows"
	"github.com/Caia-Tech/smartmeta/pkg/document"
	"github.com/Caia-Tech/smartmeta/pkg/extractor"
	"github.com/Caia-Tech/smartmeta/pkg/logging"
	config "github.com/Caia-Tech/smartmeta/pkg/pipeline"
	"github.com/Caia-Tech/smartmeta/pkg/ratelimit"
	"go.temporal.io/sdk/client"
)

func main() {
	if len(os.Args) < 2 {
		showHelp()
		os.Exit(1)
	}

	cfg, err := config.Load(os.Getenv("SMARTMETA_CONFIG"))
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}
	// Keep the terminal for command output
	cfg.Logging.Level = "warn"
	if _, err := logging.SetupLogger(cfg.Logging); err != nil {
		log.Fatalf("❌ Failed to set up logging: %v", err)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "extract":
		if len(args) < 1 {
			fmt.Println("❌ Usage: smartmeta-cli extract <file>")
			os.Exit(1)
		}
		extractFile(cfg, args[0])

	case "generate":
		fs := flag.NewFlagSet("generate", flag.ExitOnError)
		out := fs.String("o", "", "write the metadata JSON to this file")
		fs.Parse(args)
		if fs.NArg() < 1 {
			fmt.Println("❌ Usage: smartmeta-cli generate [-o out.json] <file>")
			os.Exit(1)
		}
		generateMetadata(cfg, fs.Arg(0), *out)

	case "batch":
		fs := flag.NewFlagSet("batch", flag.ExitOnError)
		archive := fs.Bool("archive", false, "commit results to the metadata archive")
		fs.Parse(args)
		if fs.NArg() < 1 {
			fmt.Println("❌ Usage: smartmeta-cli batch [-archive] <file1> [file2...]")
			os.Exit(1)
		}
		runBatch(cfg, fs.Args(), *archive)

	case "preprocess":
		fs := flag.NewFlagSet("preprocess", flag.ExitOnError)
		out := fs.String("o", "", "output PNG (default <name>_ocr.png)")
		fs.Parse(args)
		if fs.NArg() < 1 {
			fmt.Println("❌ Usage: smartmeta-cli preprocess [-o out.png] <image>")
			os.Exit(1)
		}
		preprocessImage(cfg, fs.Arg(0), *out)

	case "show":
		if len(args) < 1 {
			fmt.Println("❌ Usage: smartmeta-cli show <workflow-id>")
			os.Exit(1)
		}
		showWorkflow(cfg, args[0])

	default:
		showHelp()
	}
}

func newProcessor(cfg *config.Config, generator llm.Generator) *processing.Processor {
	store := storage.NewMemoryStore(cfg.Storage.SessionTTL, nil)
	return processing.NewProcessor(extractor.NewEngine(cfg.ExtractorOptions()), store, generator, nil, cfg.Processing)
}

func uploadFile(ctx context.Context, proc *processing.Processor, path string) *document.Document {
	content, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("❌ Failed to read %s: %v", path, err)
	}
	doc, err := proc.Upload(ctx, filepath.Base(path), content)
	if err != nil {
		log.Fatalf("❌ Extraction failed: %v", err)
	}
	return doc
}

func extractFile(cfg *config.Config, path string) {
	fmt.Printf("🔄 Extracting text: %s\n", path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	doc := uploadFile(ctx, newProcessor(cfg, nil), path)

	fmt.Printf("✅ %d characters extracted (method: %s)\n", doc.CharCount(), doc.Report.Method)
	for _, page := range doc.Report.Pages {
		if page.Error != "" {
			fmt.Printf("   page %d: %s (%s)\n", page.Number, page.Method, page.Error)
			continue
		}
		fmt.Printf("   page %d: %s, %d chars\n", page.Number, page.Method, page.Chars)
	}
	for _, warning := range doc.Report.Warnings {
		fmt.Printf("⚠️  %s\n", warning)
	}
	fmt.Println()
	fmt.Println(doc.Content.Text)
}

func generateMetadata(cfg *config.Config, path, out string) {
	llmClient, err := llm.NewClient(cfg.LLM, ratelimit.NewProviderLimiter(cfg.LLM.MinInterval))
	if errors.Is(err, llm.ErrMissingAPIKey) {
		log.Fatalf("❌ OPENROUTER_API_KEY is not set")
	}
	if err != nil {
		log.Fatalf("❌ Failed to create model client: %v", err)
	}

	fmt.Printf("🔄 Generating metadata for %s with %s\n", path, llmClient.Model())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.LLM.Timeout+5*time.Minute)
	defer cancel()

	proc := newProcessor(cfg, llmClient)
	doc := uploadFile(ctx, proc, path)
	if doc.Report.LowText {
		log.Fatalf("❌ Not enough text extracted from %s (%d characters)", path, doc.CharCount())
	}

	doc, err = proc.Generate(ctx, doc.ID)
	if err != nil {
		if doc != nil && doc.Generated != nil && doc.Generated.Raw != "" {
			fmt.Println("Raw response:")
			fmt.Println(doc.Generated.Raw)
		}
		log.Fatalf("❌ Generation failed: %v", err)
	}

	filename, data, err := proc.Export(ctx, doc.ID)
	if err != nil {
		log.Fatalf("❌ Export failed: %v", err)
	}

	if out == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		log.Fatalf("❌ Failed to write %s: %v", out, err)
	}
	fmt.Printf("🎉 Metadata written to %s (suggested name: %s)\n", out, filename)
}

func preprocessImage(cfg *config.Config, path, out string) {
	content, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("❌ Failed to read %s: %v", path, err)
	}
	data, err := extractor.PreparePNG(content, cfg.ExtractorOptions().Preprocess)
	if err != nil {
		log.Fatalf("❌ Preprocessing failed: %v", err)
	}
	if out == "" {
		base := filepath.Base(path)
		out = strings.TrimSuffix(base, filepath.Ext(base)) + "_ocr.png"
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		log.Fatalf("❌ Failed to write %s: %v", out, err)
	}
	fmt.Printf("✅ Preprocessed image written to %s (tesseract available: %t)\n", out, extractor.OCRAvailable)
}

func dialTemporal(cfg *config.Config) client.Client {
	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to Temporal: %v", err)
	}
	return temporalClient
}

func runBatch(cfg *config.Config, paths []string, archive bool) {
	if !cfg.Temporal.Enabled() {
		log.Fatalf("❌ TEMPORAL_HOST is not set")
	}
	fmt.Printf("🔄 Starting batch of %d files\n", len(paths))

	// The worker reads the files itself, so it must share this filesystem.
	input := workflows.BatchInput{Archive: archive}
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			log.Fatalf("❌ Failed to resolve %s: %v", path, err)
		}
		if _, err := os.Stat(abs); err != nil {
			log.Fatalf("❌ Failed to read %s: %v", path, err)
		}
		input.Files = append(input.Files, workflows.FileInput{
			Filename: filepath.Base(abs),
			Path:     abs,
		})
	}

	temporalClient := dialTemporal(cfg)
	defer temporalClient.Close()

	workflowID := fmt.Sprintf("cli-batch-%d", time.Now().Unix())
	workflowRun, err := temporalClient.ExecuteWorkflow(
		context.Background(),
		client.StartWorkflowOptions{
			ID:        workflowID,
			TaskQueue: cfg.Temporal.TaskQueue,
		},
		workflows.BatchMetadataWorkflow,
		input,
	)
	if err != nil {
		log.Fatalf("❌ Failed to start batch workflow: %v", err)
	}

	fmt.Printf("✅ Batch workflow started: %s\n", workflowRun.GetID())
	fmt.Printf("   Processing %d documents...\n", len(paths))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	var result workflows.BatchResult
	if err := workflowRun.Get(ctx, &result); err != nil {
		fmt.Printf("❌ Batch workflow failed: %v\n", err)
		os.Exit(1)
	}

	printBatch(&result)
	fmt.Printf("   Workflow ID: %s\n", workflowRun.GetID())
}

func showWorkflow(cfg *config.Config, workflowID string) {
	temporalClient := dialTemporal(cfg)
	defer temporalClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	desc, err := temporalClient.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		log.Fatalf("❌ Failed to describe workflow: %v", err)
	}
	info := desc.GetWorkflowExecutionInfo()

	fmt.Printf("🔍 Workflow details: %s\n", workflowID)
	fmt.Printf("   Status: %s\n", info.GetStatus())
	fmt.Printf("   Started: %s\n", info.GetStartTime().AsTime().Format(time.RFC3339))
	if info.GetCloseTime() == nil {
		return
	}

	var result workflows.BatchResult
	if err := temporalClient.GetWorkflow(ctx, workflowID, "").Get(ctx, &result); err != nil {
		fmt.Printf("❌ Workflow failed: %v\n", err)
		return
	}
	printBatch(&result)
}

func printBatch(result *workflows.BatchResult) {
	fmt.Printf("🎉 Batch finished: %d completed, %d failed, %d skipped\n",
		result.Completed, result.Failed, result.Skipped)
	for _, file := range result.Files {
		switch file.Status {
		case workflows.StatusCompleted:
			title := "(untitled)"
			if file.Metadata != nil {
				if t, ok := file.Metadata.String("title"); ok {
					title = t
				}
			}
			fmt.Printf("   ✅ %s: %s\n", file.Filename, title)
		case workflows.StatusSkipped:
			fmt.Printf("   ⏭️  %s: %s\n", file.Filename, file.Error)
		default:
			fmt.Printf("   ❌ %s: %s\n", file.Filename, file.Error)
		}
	}
}

func showHelp() {
	fmt.Println("SmartMeta CLI")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  smartmeta-cli extract <file>                 Extract and print document text")
	fmt.Println("  smartmeta-cli generate [-o out.json] <file>  Generate metadata for a document")
	fmt.Println("  smartmeta-cli batch [-archive] <files...>    Process files through Temporal")
	fmt.Println("  smartmeta-cli preprocess [-o out.png] <img>  Write the image OCR would see")
	fmt.Println("  smartmeta-cli show <workflow-id>             Show a batch workflow")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  OPENROUTER_API_KEY  model provider key")
	fmt.Println("  TEMPORAL_HOST       Temporal frontend, e.g. localhost:7233")
	fmt.Println("  SMARTMETA_CONFIG    optional YAML config file")
}
