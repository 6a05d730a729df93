// The main package for the catalog-importer executable.
package main

import (
	"github.com/JakeFAU/catalog-importer/cmd"
)

func main() {
	cmd.Execute()
}
