package main

import "notesim/internal/cli"

func main() {
	cli.Execute()
}
