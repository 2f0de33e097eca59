package main

import (
	"os"

	"njvm/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
