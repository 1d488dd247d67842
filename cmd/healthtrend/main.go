package main

import "healthtrend/internal/cli"

func main() {
	cli.Execute()
}
