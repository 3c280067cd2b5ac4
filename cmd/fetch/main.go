package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/signalhouse/tickerlab/pkg/marketdata"
)

// downloadAction parses arguments, sets up the market data client, and
// downloads daily bars for every requested ticker.
func downloadAction(ctx context.Context, cmd *cli.Command) error {
	tickers := cmd.StringSlice("ticker")
	startDate := cmd.Timestamp("start")
	endDate := cmd.Timestamp("end")
	format := cmd.String("format")
	dataPath := cmd.String("data")

	clientConfig := marketdata.ClientConfig{
		ProviderType:  marketdata.ProviderPolygon,
		WriterType:    marketdata.WriterDuckDB,
		OutputFormat:  marketdata.OutputFormat(format),
		DataPath:      dataPath,
		PolygonApiKey: os.Getenv("POLYGON_API_KEY"),
	}

	client, err := marketdata.NewClient(clientConfig, nil)
	if err != nil {
		return fmt.Errorf("failed to create market data client: %w", err)
	}

	for _, ticker := range tickers {
		downloadParams := marketdata.DownloadParams{
			Ticker:    ticker,
			StartDate: startDate,
			EndDate:   endDate,
		}

		log.Printf("Starting download for %s from %s to %s...",
			ticker, startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))

		if err := client.Download(ctx, downloadParams); err != nil {
			return fmt.Errorf("download failed for %s: %w", ticker, err)
		}
	}

	log.Println("Download completed successfully.")

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "fetch",
		Usage: "Download daily bars from Polygon.io",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "ticker",
				Aliases:  []string{"t"},
				Usage:    "Stock ticker symbol (repeatable)",
				Required: true,
			},
			&cli.TimestampFlag{
				Name:    "start",
				Aliases: []string{"s"},
				Usage:   "Start date in `YYYY-MM-DD` format",
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
				Required: true,
			},
			&cli.TimestampFlag{
				Name:     "end",
				Aliases:  []string{"e"},
				Usage:    "End date in `YYYY-MM-DD` format. Defaults to today.",
				Value:    time.Now(),
				Required: false,
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
			},
			&cli.StringFlag{
				Name:     "format",
				Aliases:  []string{"f"},
				Usage:    fmt.Sprintf("Output format (%s or %s)", marketdata.OutputCSV, marketdata.OutputParquet),
				Value:    string(marketdata.OutputCSV),
				Required: false,
			},
			&cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "Path to the data output directory",
				Value:    "data",
				Required: false,
			},
		},
		Action: downloadAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
