// The main package for the rpacrawler executable.
package main

import "github.com/JakeFAU/rpa-crawler/cmd"

func main() {
	cmd.Execute()
}
