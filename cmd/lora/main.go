package main

import (
	"github.com/ecc1/rfm9x/internal/cli"
)

func main() {
	cli.Execute()
}
