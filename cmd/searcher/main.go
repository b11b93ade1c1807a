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
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/quarry"
	"github.com/poiesic/quarry/config"
	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/retrieval"
	"github.com/poiesic/quarry/vectorstore"
)

var (
	configPath = flag.String("config", "quarry.yaml", "configuration file")
	topK       = flag.Int("k", 5, "number of passages")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// tracer prints each search stage with its elapsed time.
type tracer struct {
	query string
	start time.Time
}

var _ retrieval.SearchMonitor = (*tracer)(nil)

func (t *tracer) Start(query string, topK int) {
	t.query = query
	t.start = time.Now()
	fmt.Printf("query %q top_k=%d\n", query, topK)
}

func (t *tracer) AfterEmbedding(vector []float32) {
	fmt.Printf("  embedded: %d dims [%s]\n", len(vector), time.Since(t.start))
}

func (t *tracer) AfterQuery(matches []vectorstore.Match) {
	fmt.Printf("  matched: %d vectors [%s]\n", len(matches), time.Since(t.start))
}

func (t *tracer) Finish(passages []core.Passage) {
	fmt.Printf("Found %d hits [%s]\n", len(passages), time.Since(t.start))
	for i, p := range passages {
		terms := retrieval.MatchedTerms(p.Content, t.query)
		fmt.Printf("%d: %s p.%d (%d)[%0.3f] %v\n", i, p.Citation.FilePath, p.Citation.PageNumber, p.Citation.ChunkId, p.Score, terms)
	}
}

func main() {
	if err := config.LoadEnv(); err != nil {
		panic(err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	db, err := quarry.NewDatabase(cfg.Store.Path,
		quarry.WithAIConfig(cfg.AIConfig()),
		quarry.WithIndexName(cfg.VectorStore.Index))
	if err != nil {
		panic(err)
	}
	defer db.Close()

	retriever, err := db.NewRetriever()
	if err != nil {
		panic(err)
	}

	query := "revenue growth"
	if flag.NArg() > 0 {
		query = strings.Join(flag.Args(), " ")
	}
	if _, err := retriever.SearchWithMonitor(context.Background(), query, *topK, &tracer{}); err != nil {
		panic(err)
	}
}
