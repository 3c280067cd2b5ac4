package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type DownloadConfigTestSuite struct {
	suite.Suite
}

func TestDownloadConfigSuite(t *testing.T) {
	suite.Run(t, new(DownloadConfigTestSuite))
}

func (suite *DownloadConfigTestSuite) validBase() BaseDownloadConfig {
	return BaseDownloadConfig{
		Ticker:    "AAPL",
		StartDate: "2024-01-01",
		EndDate:   "2024-12-31",
	}
}

func (suite *DownloadConfigTestSuite) TestBaseConfigValid() {
	config := suite.validBase()
	suite.NoError(config.Validate())
}

func (suite *DownloadConfigTestSuite) TestBaseConfigMissingTicker() {
	config := suite.validBase()
	config.Ticker = ""
	suite.Error(config.Validate())
}

func (suite *DownloadConfigTestSuite) TestBaseConfigBadDateFormat() {
	config := suite.validBase()
	config.StartDate = "01/02/2024"

	err := config.Validate()
	suite.Error(err)
	suite.Contains(err.Error(), "invalid startDate format")
}

func (suite *DownloadConfigTestSuite) TestToDownloadParams() {
	config := suite.validBase()

	params, err := config.ToDownloadParams()
	suite.NoError(err)
	suite.Equal("AAPL", params.Ticker)
	suite.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), params.StartDate)
	suite.Equal(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), params.EndDate)
}

func (suite *DownloadConfigTestSuite) TestPolygonConfigRequiresApiKey() {
	config := PolygonDownloadConfig{
		BaseDownloadConfig: suite.validBase(),
	}
	suite.Error(config.Validate())

	config.ApiKey = "key"
	suite.NoError(config.Validate())
}

func (suite *DownloadConfigTestSuite) TestToClientConfig() {
	config := PolygonDownloadConfig{
		BaseDownloadConfig: suite.validBase(),
		ApiKey:             "key",
	}

	clientConfig := config.ToClientConfig("/data", OutputCSV)
	suite.Equal(ProviderPolygon, clientConfig.ProviderType)
	suite.Equal(WriterDuckDB, clientConfig.WriterType)
	suite.Equal(OutputCSV, clientConfig.OutputFormat)
	suite.Equal("/data", clientConfig.DataPath)
	suite.Equal("key", clientConfig.PolygonApiKey)
}

func (suite *DownloadConfigTestSuite) TestParsePolygonConfig() {
	jsonConfig := `{"ticker":"SPY","startDate":"2024-01-01","endDate":"2024-06-30","apiKey":"secret"}`

	config, err := ParsePolygonConfig(jsonConfig)
	suite.NoError(err)
	suite.Equal("SPY", config.Ticker)
	suite.Equal("secret", config.ApiKey)
}

func (suite *DownloadConfigTestSuite) TestParsePolygonConfigInvalidJSON() {
	_, err := ParsePolygonConfig(`{not json`)
	suite.Error(err)
}
