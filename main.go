// The main package for the replycrawler executable.
package main

import (
	"github.com/replyrank/crawler/cmd"
)

func main() {
	cmd.Execute()
}
