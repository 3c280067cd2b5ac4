package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/moznion/go-optional"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/signalhouse/tickerlab/internal/datasource"
	"github.com/signalhouse/tickerlab/internal/indicator"
	"github.com/signalhouse/tickerlab/internal/logger"
	"github.com/signalhouse/tickerlab/internal/store"
	"github.com/signalhouse/tickerlab/internal/types"
	"github.com/signalhouse/tickerlab/pkg/utils"
)

func loadScenario(path string) (types.ScenarioParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.ScenarioParams{}, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var params types.ScenarioParams
	if err := yaml.Unmarshal(data, &params); err != nil {
		return types.ScenarioParams{}, fmt.Errorf("failed to parse scenario file: %w", err)
	}

	if err := params.Validate(); err != nil {
		return types.ScenarioParams{}, err
	}

	return params, nil
}

// computeAction runs the indicator engine for one scenario over every symbol
// in the bar file. The stored scenario hash decides between a full recompute
// and an incremental pass.
func computeAction(ctx context.Context, cmd *cli.Command) error {
	scenarioPath := cmd.String("scenario")
	dataPath := cmd.String("data")
	dbPath := cmd.String("db")
	onlySymbol := cmd.String("symbol")

	zapLogger, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer zapLogger.Sync()

	params, err := loadScenario(scenarioPath)
	if err != nil {
		return err
	}

	source, err := datasource.NewDuckDBBarSource("", zapLogger)
	if err != nil {
		return fmt.Errorf("failed to open bar source: %w", err)
	}
	defer source.Close()

	if err := source.Initialize(dataPath); err != nil {
		return fmt.Errorf("failed to load bar data: %w", err)
	}

	metricStore, err := store.NewStore(dbPath, zapLogger)
	if err != nil {
		return fmt.Errorf("failed to open metric store: %w", err)
	}
	defer metricStore.Close()

	symbols, err := source.Symbols()
	if err != nil {
		return fmt.Errorf("failed to list symbols: %w", err)
	}

	if onlySymbol != "" {
		symbols = []string{onlySymbol}
	}

	hash := params.Hash()

	storedHash, err := metricStore.ScenarioHash(params.Name)
	if err != nil {
		return err
	}

	// A parameter change invalidates every stored row; only an identical
	// hash allows the incremental path.
	full := storedHash.IsNone() || storedHash.Unwrap() != hash

	if full {
		if err := metricStore.DeleteAll(); err != nil {
			return err
		}

		zapLogger.Info("running full recompute",
			zap.String("scenario", params.Name),
			zap.String("hash", hash))
	} else {
		zapLogger.Info("running incremental recompute",
			zap.String("scenario", params.Name))
	}

	engine, err := indicator.NewEngine(params, zapLogger)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(symbols),
		progressbar.OptionSetDescription(fmt.Sprintf("Computing %s", params.Name)),
		progressbar.OptionShowCount())

	for _, symbol := range symbols {
		bars, err := source.GetRange(symbol, optional.None[time.Time](), optional.None[time.Time]())
		if err != nil {
			return fmt.Errorf("failed to read bars for %s: %w", symbol, err)
		}

		var (
			metrics []types.Metric
			alerts  []types.Alert
		)

		if full {
			metrics, alerts, err = engine.ComputeAll(bars)
		} else {
			var since time.Time

			last, lastErr := metricStore.LastComputedDate(symbol)
			if lastErr != nil {
				return lastErr
			}

			if last.IsSome() {
				since = last.Unwrap().AddDate(0, 0, 1)
			}

			if since.IsZero() {
				metrics, alerts, err = engine.ComputeAll(bars)
			} else {
				if err := metricStore.DeleteFrom(symbol, since); err != nil {
					return err
				}

				metrics, alerts, err = engine.ComputeFrom(bars, since)
			}
		}

		if err != nil {
			return fmt.Errorf("computation failed for %s: %w", symbol, err)
		}

		if err := metricStore.SaveMetrics(metrics); err != nil {
			return err
		}

		if err := metricStore.SaveAlerts(alerts); err != nil {
			return err
		}

		bar.Add(1)
	}

	bar.Finish()

	if err := metricStore.SetScenarioHash(params.Name, hash); err != nil {
		return err
	}

	zapLogger.Info("computation complete",
		zap.String("scenario", params.Name),
		zap.Int("symbols", len(symbols)))

	return nil
}

// schemaAction prints the JSON schema of the scenario file.
func schemaAction(ctx context.Context, cmd *cli.Command) error {
	schema, err := utils.GetSchemaFromConfig(types.ScenarioParams{})
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	fmt.Println(schema)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "compute",
		Usage: "Compute scenario metrics and alerts over daily bars",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run the indicator engine for a scenario",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "scenario",
						Aliases:  []string{"c"},
						Usage:    "Path to the scenario YAML file",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "Path to the daily bar file (CSV or Parquet)",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "db",
						Usage:    "Path to the metric store database",
						Value:    "metrics.duckdb",
						Required: false,
					},
					&cli.StringFlag{
						Name:     "symbol",
						Usage:    "Restrict computation to one symbol",
						Required: false,
					},
				},
				Action: computeAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the scenario file JSON schema",
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
