package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/poiesic/quarry"
	"github.com/poiesic/quarry/config"
	"github.com/poiesic/quarry/core"
	"gopkg.in/yaml.v3"
)

// seedCompany is one entry of a seed file.
type seedCompany struct {
	Ticker   string `yaml:"ticker"`
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
}

var companies = []seedCompany{
	{Ticker: "RELIANCE", Name: "Reliance Industries Limited", Location: "filings/reliance"},
	{Ticker: "TCS", Name: "Tata Consultancy Services Limited", Location: "filings/tcs"},
	{Ticker: "HDFCBANK", Name: "HDFC Bank Limited", Location: "filings/hdfcbank"},
	{Ticker: "INFY", Name: "Infosys Limited", Location: "filings/infy"},
	{Ticker: "ICICIBANK", Name: "ICICI Bank Limited", Location: "filings/icicibank"},
	{Ticker: "HINDUNILVR", Name: "Hindustan Unilever Limited", Location: "filings/hindunilvr"},
	{Ticker: "ITC", Name: "ITC Limited", Location: "filings/itc"},
	{Ticker: "SBIN", Name: "State Bank of India", Location: "filings/sbin"},
	{Ticker: "BHARTIARTL", Name: "Bharti Airtel Limited", Location: "filings/bhartiartl"},
	{Ticker: "LT", Name: "Larsen & Toubro Limited", Location: "filings/lt"},
}

var (
	seedFileName = flag.String("src", "", "YAML file of seed companies")
	configPath   = flag.String("config", "quarry.yaml", "configuration file")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// companiesFromFile reads a YAML list of seed companies.
func companiesFromFile(filename string) ([]seedCompany, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var seeds []seedCompany
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, err
	}
	return seeds, nil
}

// seed registers new companies and applies every storage location, so
// rerunning a seed file moves existing companies to the listed locations.
func seed(ctx context.Context, db *quarry.Database, seeds []seedCompany) error {
	batch := make([]*core.Company, 0, len(seeds))
	for _, s := range seeds {
		batch = append(batch, &core.Company{Ticker: s.Ticker, Name: s.Name})
	}
	added, skipped, err := db.RegisterCompanies(ctx, batch...)
	if err != nil {
		return err
	}
	slog.Info("registered companies", "added", len(added), "skipped", len(skipped))

	for _, s := range seeds {
		if s.Location == "" {
			continue
		}
		if _, err := db.SetStorageLocation(ctx, s.Ticker, s.Location); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if err := config.LoadEnv(); err != nil {
		panic(err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	db, err := quarry.NewDatabase(cfg.Store.Path, quarry.WithAIConfig(cfg.AIConfig()))
	if err != nil {
		panic(err)
	}
	defer db.Close()

	seeds := companies
	if *seedFileName != "" {
		seeds, err = companiesFromFile(*seedFileName)
		if err != nil {
			panic(err)
		}
	}

	if err := seed(context.Background(), db, seeds); err != nil {
		panic(err)
	}
}
