package main

import "github.com/jmcleod/techsync/cmd/techsync/cmd"

func main() {
	cmd.Execute()
}
