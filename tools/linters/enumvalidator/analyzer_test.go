package enumvalidator_test

import (
	"testing"

	"golang.org/x/tools/go/analysis/analysistest"

	"github.com/yabrams/precon-demo-sub001/tools/linters/enumvalidator"
)

func TestAnalyzer(t *testing.T) {
	testdata := analysistest.TestData()
	analysistest.Run(t, testdata, enumvalidator.Analyzer, "example")
}
