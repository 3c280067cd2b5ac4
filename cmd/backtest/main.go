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

	"github.com/signalhouse/tickerlab/internal/backtest"
	"github.com/signalhouse/tickerlab/internal/datasource"
	"github.com/signalhouse/tickerlab/internal/indicator"
	"github.com/signalhouse/tickerlab/internal/logger"
	"github.com/signalhouse/tickerlab/internal/types"
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

// runAction computes metrics for every universe symbol, replays the alerts
// through the simulator and writes the result file.
func runAction(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	scenarioPath := cmd.String("scenario")
	dataPath := cmd.String("data")
	outPath := cmd.String("out")

	zapLogger, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer zapLogger.Sync()

	configData, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read backtest config: %w", err)
	}

	simulator := backtest.NewSimulator(zapLogger)
	if err := simulator.Initialize(string(configData)); err != nil {
		return err
	}

	params, err := loadScenario(scenarioPath)
	if err != nil {
		return err
	}

	engine, err := indicator.NewEngine(params, zapLogger)
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

	config := simulator.Config()

	inputs := backtest.Inputs{
		Bars:    make(map[string][]types.Bar),
		Metrics: make(map[string][]types.Metric),
	}

	for _, symbol := range config.Symbols {
		bars, err := source.GetRange(symbol, optional.None[time.Time](), optional.None[time.Time]())
		if err != nil {
			return fmt.Errorf("failed to read bars for %s: %w", symbol, err)
		}

		metrics, alerts, err := engine.ComputeAll(bars)
		if err != nil {
			return fmt.Errorf("computation failed for %s: %w", symbol, err)
		}

		inputs.Bars[symbol] = bars
		inputs.Metrics[symbol] = metrics
		inputs.Alerts = append(inputs.Alerts, alerts...)
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Simulating"),
		progressbar.OptionShowCount())

	result, err := simulator.Run(inputs, func(current, total int) {
		bar.ChangeMax(total)
		bar.Set(current)
	})
	if err != nil {
		return err
	}

	bar.Finish()

	if err := types.WriteResultFile(outPath, result); err != nil {
		return err
	}

	zapLogger.Info("backtest result written",
		zap.String("path", outPath),
		zap.String("id", result.ID))

	return nil
}

// schemaAction prints the JSON schema of the backtest config file.
func schemaAction(ctx context.Context, cmd *cli.Command) error {
	config := types.EmptyConfig()

	schema, err := config.GenerateSchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	fmt.Println(schema)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Run the signal backtest simulator",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run a backtest from a YAML config",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Path to the backtest YAML config",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "scenario",
						Aliases:  []string{"s"},
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
						Name:     "out",
						Aliases:  []string{"o"},
						Usage:    "Path of the result YAML file",
						Value:    "backtest_result.yaml",
						Required: false,
					},
				},
				Action: runAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the backtest config JSON schema",
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
