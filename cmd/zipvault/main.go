// Command zipvault lists and extracts ZIP archives from the command line.
package main

import "os"

func main() {
	root := buildRootCommand()
	root.AddCommand(buildListCommand())
	root.AddCommand(buildExtractCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
