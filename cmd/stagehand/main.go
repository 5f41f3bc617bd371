package main

import (
	"os"

	"github.com/stagehand-dev/stagehand/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
