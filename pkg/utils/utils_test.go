package utils

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"
)

type UtilsTestSuite struct {
	suite.Suite
}

func TestUtilsSuite(t *testing.T) {
	suite.Run(t, new(UtilsTestSuite))
}

type sampleScenario struct {
	Name  string  `json:"name" jsonschema:"description=Scenario name"`
	E     float64 `json:"e" jsonschema:"description=Channel width divisor"`
	N1    int     `json:"n1"`
	Codes []string `json:"codes,omitempty"`
}

type sampleWrapper struct {
	ID       string         `json:"id"`
	Scenario sampleScenario `json:"scenario"`
}

func (suite *UtilsTestSuite) TestGetSchemaFromConfig() {
	schema, err := GetSchemaFromConfig(sampleScenario{})

	suite.NoError(err)
	suite.NotEmpty(schema)

	var result map[string]interface{}
	suite.NoError(json.Unmarshal([]byte(schema), &result))

	suite.Contains(result, "$schema")
	// Reflection puts struct definitions under $defs behind a $ref.
	suite.Contains(result, "$ref")
	suite.Contains(result, "$defs")
}

func (suite *UtilsTestSuite) TestGetSchemaFromConfigNested() {
	schema, err := GetSchemaFromConfig(sampleWrapper{})

	suite.NoError(err)
	suite.NotEmpty(schema)

	var result map[string]interface{}
	suite.NoError(json.Unmarshal([]byte(schema), &result))
}

func (suite *UtilsTestSuite) TestGetSchemaFromConfigPointer() {
	schema, err := GetSchemaFromConfig(&sampleScenario{})

	suite.NoError(err)
	suite.NotEmpty(schema)
}

func (suite *UtilsTestSuite) TestGetSchemaFromConfigEmptyStruct() {
	type empty struct{}

	schema, err := GetSchemaFromConfig(empty{})

	suite.NoError(err)
	suite.NotEmpty(schema)
}
