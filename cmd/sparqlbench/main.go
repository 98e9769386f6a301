package main

import "sparqlbench/cmd"

func main() {
	cmd.Execute()
}
