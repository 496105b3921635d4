package main

import (
	"context"
	"os"
)

var (
	version = "0.1.0"
	commit  = "unknown"
	date    = "unknown"
)

const appName = "hhpc"

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stderr))
}
