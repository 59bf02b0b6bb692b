package main

import "swiftly/internal/cli"

func main() {
	cli.Execute()
}
