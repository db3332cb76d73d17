package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"github.com/yabrams/precon-demo-sub001/tools/linters/enumvalidator"
)

func main() {
	singlechecker.Main(enumvalidator.Analyzer)
}
