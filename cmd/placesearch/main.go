package main

import (
	"fmt"
	"os"

	"github.com/ncobase/placesearch/cmd/placesearch/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
