package main

import "github.com/ludex-app/ludex/internal/adapters/driving/cli"

func main() {
	cli.Execute()
}
