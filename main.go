package main

import "github.com/xiaot623/agentui/internal/cli"

func main() {
	cli.Execute()
}
