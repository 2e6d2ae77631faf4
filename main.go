package main

import "github.com/rkubicek/rawsidecar/cmd"

func main() {
	cmd.Execute()
}
