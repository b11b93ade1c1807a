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
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "quarry",
		Usage: "Ingest company filings and answer questions grounded in them",
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
				Usage:   "Path to the YAML configuration file",
				Value:   "quarry.yaml",
				EnvVars: []string{"QUARRY_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (overrides store.path)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Dotenv file holding API keys and credentials",
				Value: ".env",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write the default configuration file",
				Action: initCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing configuration file",
					},
				},
			},
			{
				Name:   "register",
				Usage:  "Register a company or change its storage location",
				Action: registerCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "ticker",
						Aliases:  []string{"t"},
						Usage:    "Stock ticker symbol",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Company name",
					},
					&cli.StringFlag{
						Name:  "location",
						Usage: "Storage location as bucket/prefix",
					},
				},
			},
			{
				Name:      "companies",
				Usage:     "List registered companies, optionally filtered by name or ticker",
				ArgsUsage: "[query]",
				Action:    companiesCommand,
			},
			{
				Name:   "upload",
				Usage:  "Upload a local directory to a company's storage location",
				Action: uploadCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "ticker",
						Aliases:  []string{"t"},
						Usage:    "Ticker of the owning company",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "dir",
						Usage:    "Directory to upload",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "region",
						Usage: "Bucket region used in resource URLs (defaults to object_store.region)",
					},
				},
			},
			{
				Name:   "ingest",
				Usage:  "Fetch, extract and chunk resources",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:  "resource",
						Usage: "Ingest a single resource by ID",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of pending resources to ingest (0 for all)",
					},
				},
			},
			{
				Name:   "chunk",
				Usage:  "Chunk stored documents that have no chunks yet",
				Action: chunkCommand,
			},
			{
				Name:   "contextualize",
				Usage:  "Generate situating context for stored chunks",
				Action: contextualizeCommand,
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:  "document",
						Usage: "Contextualize the chunks of one document",
					},
					&cli.StringFlag{
						Name:  "path",
						Usage: "Contextualize documents whose file path contains this fragment",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Contextualize every chunk in the store",
					},
					&cli.BoolFlag{
						Name:  "only-missing",
						Usage: "Skip chunks that already have context",
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the vector index from stored chunks",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "exclude",
						Usage: "Skip chunks whose document path contains this fragment",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks embedded per request (defaults to indexing.batch_size)",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Show the passages closest to a query",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Number of passages to return (defaults to retrieval.top_k)",
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from the indexed passages",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Number of passages to retrieve (defaults to retrieval.top_k)",
					},
					&cli.StringFlag{
						Name:  "system-prompt",
						Usage: "Replace the default system instruction",
					},
				},
			},
		},
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
