package main

import (
	"pgbenchmark/cmd"
)

func main() {
	cmd.Execute()
}
