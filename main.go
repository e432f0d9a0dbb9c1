// Package main is the entry point for the VKB Academy CLI application.
package main

import (
	"vkbacademy/cli/cmd"
)

func main() {
	cmd.Execute()
}
