// main package for refract command-line tool
// Package main is the entry point for the refract CLI.
package main

import "refract.dev/pkg/refract/cmd"

func main() {
	cmd.Execute()
}
