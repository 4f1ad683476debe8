package main

import "github.com/animus-coder/oraclebench/internal/cli"

func main() {
	cli.Execute()
}
