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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/poiesic/quarry/config"
	"github.com/poiesic/quarry/contextualize"
	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/indexing"
	"github.com/poiesic/quarry/ingestion"
	"github.com/poiesic/quarry/retrieval"
	"github.com/poiesic/quarry/storage"
	"github.com/urfave/cli/v2"
)

func initCommand(c *cli.Context) error {
	path := c.String("config")
	if !c.Bool("force") {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if err := config.Save(path, config.Default()); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
	return nil
}

func registerCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := c.Context
	ticker := c.String("ticker")
	location := c.String("location")

	_, err = s.db.Companies().GetCompanyByTicker(ctx, ticker)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		name := c.String("name")
		if name == "" {
			return errors.New("--name is required for a new company")
		}
		added, _, err := s.db.RegisterCompanies(ctx, &core.Company{Ticker: ticker, Name: name})
		if err != nil {
			return fmt.Errorf("failed to register company: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Registered %s as company %d\n", added[0].Ticker, added[0].Id)
	case err != nil:
		return err
	}

	if location != "" {
		company, err := s.db.SetStorageLocation(ctx, ticker, location)
		if err != nil {
			return fmt.Errorf("failed to set storage location: %w", err)
		}
		fmt.Fprintf(os.Stderr, "%s storage location: %s\n", company.Ticker, company.StorageLocation)
	}
	return nil
}

func companiesCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	companies, err := s.db.Companies().SearchCompanies(c.Context, c.Args().First())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTICKER\tNAME\tLOCATION")
	for _, company := range companies {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", company.Id, company.Ticker, company.Name, company.StorageLocation)
	}
	return w.Flush()
}

func uploadCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := c.Context
	company, err := s.db.Companies().GetCompanyByTicker(ctx, c.String("ticker"))
	if err != nil {
		return fmt.Errorf("unknown ticker %q: %w", c.String("ticker"), err)
	}

	region := c.String("region")
	if region == "" {
		region = s.cfg.ObjectStore.Region
	}
	uploader, err := s.db.NewUploader(region)
	if err != nil {
		return err
	}

	report, err := uploader.UploadDirectory(ctx, company, c.String("dir"))
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	out, err := sonic.ConfigStd.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if len(report.Failed) > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d files failed", len(report.Failed), report.Total), 1)
	}
	return nil
}

func ingestionOptions(cfg *config.AppConfig) []ingestion.Option {
	opts := []ingestion.Option{
		ingestion.WithPoolSize(cfg.Ingestion.Workers),
		ingestion.WithRemoteChunking(cfg.RemoteChunking()),
		ingestion.WithLocalChunking(cfg.LocalChunking()),
		ingestion.WithFetchTimeout(cfg.FetchTimeout()),
	}
	if cfg.Ingestion.PerDocumentCommit {
		opts = append(opts, ingestion.WithPerDocumentCommit())
	}
	return opts
}

func ingestCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := c.Context
	opts := ingestionOptions(s.cfg)

	if id := c.Int64("resource"); id != 0 {
		result, err := s.db.Ingest(ctx, core.ID(id), opts...)
		if err != nil {
			return fmt.Errorf("ingesting resource %d failed: %w", id, err)
		}
		if result.AlreadyIngested {
			fmt.Fprintf(os.Stderr, "Resource %d was already ingested\n", id)
			return nil
		}
		fmt.Fprintf(os.Stderr, "Resource %d: %d documents, %d chunks\n", id, result.DocumentsCreated, result.ChunksCreated)
		return nil
	}

	batch, err := s.db.IngestPending(ctx, c.Int("limit"), opts...)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Ingested %d/%d resources (%d documents, %d chunks) in %s\n",
		batch.Ingested, batch.Total, batch.DocumentsCreated, batch.ChunksCreated, batch.Duration)
	for _, f := range batch.Failed {
		fmt.Fprintf(os.Stderr, "  resource %d: %v\n", f.Id, f.Err)
	}
	if retryable := len(batch.Failed) - len(batch.Permanent()); retryable > 0 {
		return cli.Exit(fmt.Sprintf("%d resources failed and can be retried", retryable), 1)
	}
	return nil
}

func chunkCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	pipeline, err := s.db.NewIngestionPipeline(ingestionOptions(s.cfg)...)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	result, err := pipeline.ChunkDocuments(c.Context)
	if err != nil {
		return fmt.Errorf("chunking failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Chunked %d documents into %d chunks\n", result.Documents, result.ChunksCreated)
	for _, f := range result.Failed {
		fmt.Fprintf(os.Stderr, "  document %d: %v\n", f.Id, f.Err)
	}
	return nil
}

// contextualizeTarget checks that exactly one of --document, --path and --all is set.
func contextualizeTarget(c *cli.Context) (string, error) {
	var set []string
	for _, name := range []string{"document", "path", "all"} {
		if c.IsSet(name) {
			set = append(set, name)
		}
	}
	if len(set) != 1 {
		return "", errors.New("exactly one of --document, --path or --all is required")
	}
	return set[0], nil
}

func contextualizeCommand(c *cli.Context) error {
	target, err := contextualizeTarget(c)
	if err != nil {
		return err
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	opts := []contextualize.Option{contextualize.WithConcurrency(s.cfg.Contextualize.Concurrency)}
	if s.cfg.Contextualize.RateLimit > 0 {
		opts = append(opts, contextualize.WithRateLimit(s.cfg.Contextualize.RateLimit, s.cfg.Contextualize.Burst))
	}
	if c.Bool("only-missing") {
		opts = append(opts, contextualize.WithOnlyMissing())
	}
	contextualizer, err := s.db.NewContextualizer(opts...)
	if err != nil {
		return err
	}
	defer contextualizer.Release()

	ctx := c.Context
	var result contextualize.Result
	switch target {
	case "document":
		result, err = contextualizer.ContextualizeDocument(ctx, core.ID(c.Int64("document")))
	case "path":
		result, err = contextualizer.ContextualizeByFilePath(ctx, c.String("path"))
	default:
		result, err = contextualizer.ContextualizeAll(ctx)
	}
	if err != nil {
		return fmt.Errorf("contextualization failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Documents: %d, updated: %d, skipped: %d, failed: %d\n",
		result.Documents, result.Updated, result.Skipped, len(result.Failed))
	for _, f := range result.Failed {
		fmt.Fprintf(os.Stderr, "  chunk %d: %v\n", f.ChunkId, f.Err)
	}
	return nil
}

func reindexCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	batchSize := c.Int("batch-size")
	if batchSize == 0 {
		batchSize = s.cfg.Indexing.BatchSize
	}
	exclude := c.String("exclude")
	if !c.IsSet("exclude") {
		exclude = s.cfg.Indexing.Exclude
	}

	fmt.Fprintf(os.Stderr, "Database: %s\n", s.cfg.Store.Path)
	fmt.Fprintf(os.Stderr, "Index: %s (%s)\n", s.db.IndexName(), s.cfg.VectorStore.Type)
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", s.cfg.AI.EmbeddingModel)
	fmt.Fprintln(os.Stderr)

	result, err := s.db.Reindex(c.Context, exclude,
		indexing.WithBatchSize(batchSize),
		indexing.WithProgress(os.Stderr))
	if err != nil {
		return fmt.Errorf("reindexing failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Indexed %d chunks (%d excluded, %d orphaned), %d resources marked indexed in %s\n",
		result.ChunksIndexed, result.Excluded, result.Orphaned, result.ResourcesIndexed, result.Duration)
	if len(result.Failed) > 0 {
		failed := 0
		for _, f := range result.Failed {
			failed += len(f.ChunkIds)
			fmt.Fprintf(os.Stderr, "  %d chunks starting at %d: %v\n", len(f.ChunkIds), f.ChunkIds[0], f.Err)
		}
		return cli.Exit(fmt.Sprintf("%d chunks were not indexed", failed), 1)
	}
	return nil
}

func queryArgs(c *cli.Context) (string, error) {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return "", fmt.Errorf("%s requires a query argument", c.Command.Name)
	}
	return query, nil
}

func topK(c *cli.Context, cfg *config.AppConfig) int {
	if k := c.Int("top-k"); k > 0 {
		return k
	}
	return cfg.Retrieval.TopK
}

func searchCommand(c *cli.Context) error {
	query, err := queryArgs(c)
	if err != nil {
		return err
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	retriever, err := s.db.NewRetriever()
	if err != nil {
		return err
	}
	passages, err := retriever.Search(c.Context, query, topK(c, s.cfg))
	if err != nil {
		return err
	}

	if len(passages) == 0 {
		fmt.Println("No passages found.")
		return nil
	}
	for i, p := range passages {
		fmt.Printf("%d. [%.4f] %s page %d (chunk %d)\n", i+1, p.Score, p.Citation.FilePath, p.Citation.PageNumber, p.Citation.ChunkId)
		if terms := retrieval.MatchedTerms(p.Content, query); len(terms) > 0 {
			fmt.Printf("   matched: %s\n", strings.Join(terms, ", "))
		}
		fmt.Printf("   %s\n\n", preview(p.Content, 240))
	}
	return nil
}

func askCommand(c *cli.Context) error {
	question, err := queryArgs(c)
	if err != nil {
		return err
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	opts := []retrieval.Option{
		retrieval.WithTopK(topK(c, s.cfg)),
		retrieval.WithTemperature(s.cfg.AI.ChatTemperature),
	}
	if prompt := c.String("system-prompt"); prompt != "" {
		opts = append(opts, retrieval.WithSystemPrompt(prompt))
	}

	answer, err := s.db.Answer(c.Context, []core.Message{{Role: core.RoleUser, Content: question}}, opts...)
	if err != nil {
		return err
	}

	fmt.Println(answer.Content)
	if len(answer.Citations) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, citation := range answer.Citations {
			fmt.Printf("  - %s, page %d\n", citation.FilePath, citation.PageNumber)
		}
	}
	return nil
}

func preview(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
