package main

import (
	_ "github.com/alexbrainman/odbc" // registers the "odbc" driver for the legacy ledger

	"github.com/waiwai/settlement-bridge/internal/cli"
)

func main() {
	cli.Execute()
}
