package main

import (
	"github.com/markdave123-py/Ledgerlens/internal/cli"
)

func main() {
	cli.Execute()
}
