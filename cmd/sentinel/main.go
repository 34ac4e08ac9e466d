package main

import (
	"github.com/confsentinel/sentinel/internal/cli"
)

func main() {
	cli.Execute()
}
