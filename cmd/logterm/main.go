package main

import "github.com/atikulmunna/logterm/internal/cmd"

func main() {
	cmd.Execute()
}
