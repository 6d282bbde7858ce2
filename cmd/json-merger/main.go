package main

import (
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/Fuabioo/json-merger/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
