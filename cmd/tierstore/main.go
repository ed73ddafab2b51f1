package main

import "github.com/materials-commons/tierstore/cmd/tierstore/cmd"

func main() {
	cmd.Execute()
}
