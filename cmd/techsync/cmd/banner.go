package cmd

import (
	"fmt"
	"io"
)

const banner = `
  _____         _     ____
 |_   _|__  ___| |__ / ___| _   _ _ __   ___
   | |/ _ \/ __| '_ \\___ \| | | | '_ \ / __|
   | |  __/ (__| | | |___) | |_| | | | | (__
   |_|\___|\___|_| |_|____/ \__, |_| |_|\___|
                            |___/
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Field Technician Client - Version %s\x1b[0m\n\n", Version)
}
