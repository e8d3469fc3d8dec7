package main

import (
	"github.com/waitprof/waitprof/pkg/cmd"
)

func main() {
	cmd.Execute()
}
