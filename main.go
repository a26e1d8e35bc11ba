// Command scraper extracts product records from a search-results page.
package main

import "github.com/JakeFAU/realtime-cpi-scraper/cmd"

func main() {
	cmd.Execute()
}
