package main

import (
	"github.com/gitmerge/gitmerge/cmd"
)

var version = "0.0.1"

func main() {
	cmd.Execute(version)
}
