package main

import (
	"os"

	"github.com/kebairia/dirbak/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
