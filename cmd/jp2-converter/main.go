package main

import "os"

// main is the entry point for the jp2-converter application.
func main() {
	os.Exit(Execute())
}
