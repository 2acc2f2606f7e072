// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/insightdocs"
	"github.com/poiesic/insightdocs/config"
	"github.com/poiesic/insightdocs/core"
	"github.com/poiesic/insightdocs/ingestion"
)

func main() {
	// Optional .env for local development; absence is fine.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "insightdocs",
		Usage: "Document ingestion and retrieval pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				Value:   "insightdocs.yaml",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest a document and wait for the workflow to finish",
				ArgsUsage: "<file>",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "type",
						Usage: "Declared file type (txt, md, pdf, docx); defaults to the file extension",
					},
					&cli.BoolFlag{
						Name:  "no-wait",
						Usage: "Return the task ID immediately instead of waiting",
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Ask a question over the ingested documents",
				ArgsUsage: "<question>",
				Action:    queryCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of units to retrieve",
						Value:   5,
					},
				},
			},
			{
				Name:      "status",
				Usage:     "Show the status of an ingestion task",
				ArgsUsage: "<task-id>",
				Action:    statusCommand,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a running ingestion task",
				ArgsUsage: "<task-id>",
				Action:    cancelCommand,
			},
			{
				Name:   "list",
				Usage:  "List ingested documents",
				Action: listCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "offset", Value: 0},
					&cli.IntFlag{Name: "limit", Value: 20},
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a document, its units and its vectors",
				ArgsUsage: "<document-id>",
				Action:    deleteCommand,
			},
			{
				Name:   "queries",
				Usage:  "Show recent query records",
				Action: queriesCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20},
				},
			},
			{
				Name:   "cleanup",
				Usage:  "Fail stuck tasks and purge old terminal tasks",
				Action: cleanupCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func openService(c *cli.Context) (*insightdocs.Service, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	return insightdocs.New(c.Context, cfg)
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: insightdocs ingest <file>")
	}
	path := c.Args().First()

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	declared := c.String("type")
	if declared == "" {
		declared = strings.TrimPrefix(filepath.Ext(path), ".")
	}

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	taskID, err := svc.SubmitIngestion(c.Context, ingestion.Submission{
		Locator:      abs,
		Filename:     filepath.Base(path),
		DeclaredType: declared,
		SizeBytes:    info.Size(),
	})
	if err != nil {
		return err
	}
	fmt.Printf("task %s submitted\n", taskID)

	if c.Bool("no-wait") {
		return nil
	}

	task, err := svc.WaitForTask(c.Context, taskID, 250*time.Millisecond)
	if err != nil {
		return err
	}
	printTask(task)
	if task.Status == core.StatusFailed {
		return cli.Exit("", 1)
	}
	return nil
}

func queryCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: insightdocs query <question>")
	}

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	resp, err := svc.Answer(c.Context, c.Args().First(), c.Int("top-k"))
	if err != nil {
		return err
	}

	fmt.Println(resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, src := range resp.Sources {
			fmt.Printf("  %-40s score=%.4f\n", src.DocumentName, src.Score)
		}
	}
	fmt.Printf("\nlatency: %s\n", resp.Latency.Round(time.Millisecond))
	return nil
}

func statusCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: insightdocs status <task-id>")
	}

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	task, err := svc.TaskStatus(c.Context, core.ID(c.Args().First()))
	if err != nil {
		return err
	}
	printTask(task)
	return nil
}

func cancelCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: insightdocs cancel <task-id>")
	}

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.CancelTask(c.Context, core.ID(c.Args().First())); err != nil {
		return err
	}
	fmt.Println("cancellation requested")
	return nil
}

func listCommand(c *cli.Context) error {
	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	docs, total, err := svc.ListDocuments(c.Context, c.Int("offset"), c.Int("limit"))
	if err != nil {
		return err
	}

	fmt.Printf("%d document(s)\n", total)
	for _, doc := range docs {
		fmt.Printf("  %s  %-10s  %-30s  %s\n", doc.Id, doc.Status, doc.Filename,
			doc.CreatedAt.Local().Format(time.DateTime))
		if doc.ErrorDetail != "" {
			fmt.Printf("    error: %s\n", doc.ErrorDetail)
		}
	}
	return nil
}

func deleteCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: insightdocs delete <document-id>")
	}

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	id := core.ID(c.Args().First())
	if err := svc.DeleteDocument(c.Context, id); err != nil {
		return err
	}
	fmt.Printf("document %s deleted\n", id)
	return nil
}

func queriesCommand(c *cli.Context) error {
	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	records, err := svc.ListQueries(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	for _, rec := range records {
		fmt.Printf("%s  %s\n  Q: %s\n  A: %s\n", rec.CreatedAt.Local().Format(time.DateTime),
			rec.Latency.Round(time.Millisecond), rec.Query, rec.Answer)
	}
	return nil
}

func cleanupCommand(c *cli.Context) error {
	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	stuck, err := svc.FailStuckTasks(c.Context)
	if err != nil {
		return err
	}
	purged, err := svc.PurgeTasks(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("failed %d stuck task(s), purged %d terminal task(s)\n", stuck, purged)
	return nil
}

func printTask(task *core.Task) {
	fmt.Printf("task %s\n  kind:     %s\n  status:   %s\n  progress: %.0f%%\n",
		task.Id, task.Kind, task.Status, task.Progress*100)
	if task.DocumentId != nil {
		fmt.Printf("  document: %s\n", *task.DocumentId)
	}
	if task.ErrorDetail != "" {
		fmt.Printf("  error:    %s\n", task.ErrorDetail)
	}
	if task.Result != nil {
		fmt.Printf("  units:    %d\n  vectors:  %d\n", task.Result.UnitCount, task.Result.VectorCount)
		if task.Result.SummaryGenerated {
			fmt.Printf("  summary:  %s\n", task.Result.Summary)
		}
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
