package main

import "sheetdash/internal/cli"

func main() {
	cli.Execute()
}
