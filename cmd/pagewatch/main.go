// Package main provides the pagewatch command line.
//
// Usage:
//
//	pagewatch add <url> [--selector css] [--name name]
//	pagewatch run
//	pagewatch check [url...]
//
// See --help for all available options.
package main

func main() {
	Execute()
}
