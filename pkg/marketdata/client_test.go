package marketdata

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// ClientTestSuite is a test suite for the Client implementation.
type ClientTestSuite struct {
	suite.Suite
	tempDir string
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (suite *ClientTestSuite) SetupSuite() {
	tempDir, err := os.MkdirTemp("", "marketdata-client-test")
	suite.Require().NoError(err)
	suite.tempDir = tempDir
}

func (suite *ClientTestSuite) TearDownSuite() {
	if suite.tempDir != "" {
		os.RemoveAll(suite.tempDir)
	}
}

func (suite *ClientTestSuite) validConfig() ClientConfig {
	return ClientConfig{
		ProviderType:  ProviderPolygon,
		WriterType:    WriterDuckDB,
		OutputFormat:  OutputCSV,
		DataPath:      suite.tempDir,
		PolygonApiKey: "test-api-key",
	}
}

func (suite *ClientTestSuite) TestNewClient_ValidConfig() {
	client, err := NewClient(suite.validConfig(), nil)
	suite.NoError(err)
	suite.NotNil(client)
}

func (suite *ClientTestSuite) TestNewClient_MissingApiKey() {
	config := suite.validConfig()
	config.PolygonApiKey = ""

	client, err := NewClient(config, nil)
	suite.Error(err)
	suite.Nil(client)
}

func (suite *ClientTestSuite) TestNewClient_UnsupportedProvider() {
	config := suite.validConfig()
	config.ProviderType = ProviderType("binance")

	client, err := NewClient(config, nil)
	suite.Error(err)
	suite.Nil(client)
}

func (suite *ClientTestSuite) TestNewClient_MissingDataPath() {
	config := suite.validConfig()
	config.DataPath = ""

	client, err := NewClient(config, nil)
	suite.Error(err)
	suite.Nil(client)
}

func (suite *ClientTestSuite) TestDownload_InvalidParams() {
	client, err := NewClient(suite.validConfig(), nil)
	suite.Require().NoError(err)

	// End date before start date fails validation before any network call.
	params := DownloadParams{
		Ticker:    "AAPL",
		StartDate: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	err = client.Download(context.Background(), params)
	suite.Error(err)
	suite.Contains(err.Error(), "invalid download parameters")
}

func (suite *ClientTestSuite) TestDownload_MissingTicker() {
	client, err := NewClient(suite.validConfig(), nil)
	suite.Require().NoError(err)

	params := DownloadParams{
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}

	err = client.Download(context.Background(), params)
	suite.Error(err)
}
