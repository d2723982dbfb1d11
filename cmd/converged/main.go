package main

import "github.com/inflatable-cookie/convergence-sub001/cmd/converged/cmd"

func main() {
	cmd.Execute()
}
