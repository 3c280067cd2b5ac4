package provider

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/moznion/go-optional"
	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"

	"github.com/signalhouse/tickerlab/internal/types"
	"github.com/signalhouse/tickerlab/pkg/marketdata/writer"
)

type PolygonClient struct {
	client *polygon.Client
	writer writer.BarWriter
}

func NewPolygonClient(apiKey string) (Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("apiKey is required")
	}

	client := polygon.New(apiKey)

	return &PolygonClient{
		client: client,
		writer: nil,
	}, nil
}

func (c *PolygonClient) ConfigWriter(w writer.BarWriter) {
	c.writer = w
}

// Download pulls adjusted daily aggregates for the ticker and writes one bar
// per trading day.
func (c *PolygonClient) Download(ctx context.Context, ticker string, startDate time.Time, endDate time.Time, onProgress OnDownloadProgress) (path string, err error) {
	if c.writer == nil {
		return "", fmt.Errorf("no writer configured for PolygonClient. Call ConfigWriter first")
	}

	err = c.writer.Initialize()
	if err != nil {
		return "", fmt.Errorf("failed to initialize writer: %w", err)
	}

	defer func() {
		if cerr := c.writer.Close(); cerr != nil {
			if err == nil {
				err = fmt.Errorf("error closing writer: %w", cerr)
			} else {
				log.Printf("Error closing writer after another error: %v", cerr)
			}
		}
	}()

	totalDays := int(endDate.Sub(startDate).Hours()/24) + 1

	bar := progressbar.NewOptions(totalDays, progressbar.OptionSetDescription(fmt.Sprintf("Downloading %s", ticker)), progressbar.OptionShowCount())

	adjusted := true

	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     ticker,
		Multiplier: 1,
		Timespan:   models.Day,
		From:       models.Millis(startDate),
		To:         models.Millis(endDate),
		Adjusted:   &adjusted,
	}.WithLimit(50000)

	iter := c.client.ListAggs(ctx, params)

	processedCount := 0

	for iter.Next() {
		if onProgress != nil {
			onProgress(float64(processedCount), float64(totalDays), fmt.Sprintf("Downloading %s", ticker))
		}

		agg := iter.Item()

		dailyBar := types.Bar{
			Symbol: ticker,
			Date:   types.DateKey(time.Time(agg.Timestamp)),
			Open:   optional.Some(decimal.NewFromFloat(agg.Open)),
			High:   optional.Some(decimal.NewFromFloat(agg.High)),
			Low:    optional.Some(decimal.NewFromFloat(agg.Low)),
			Close:  optional.Some(decimal.NewFromFloat(agg.Close)),
			Volume: int64(agg.Volume),
		}

		err = c.writer.Write(dailyBar)
		if err != nil {
			return "", fmt.Errorf("failed to write data: %w", err)
		}

		processedCount++

		daysElapsed := int(time.Time(agg.Timestamp).Sub(startDate).Hours() / 24)
		bar.Set(daysElapsed)
	}

	if iter.Err() != nil {
		return "", fmt.Errorf("error iterating polygon aggregates: %w", iter.Err())
	}

	bar.Finish()
	log.Printf("Finished downloading %d daily bars for %s.", processedCount, ticker)

	outputPath, err := c.writer.Finalize()
	if err != nil {
		return "", fmt.Errorf("failed to finalize writer: %w", err)
	}

	return outputPath, nil
}
