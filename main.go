package main

import (
	"os"

	"github.com/jackc/pgit/cmd"
)

func main() {
	err := cmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
