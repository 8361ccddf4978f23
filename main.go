package main

import "github.com/notargets/meshpart/cmd"

func main() {
	cmd.Execute()
}
