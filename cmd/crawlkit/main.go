// Command crawlkit crawls documentation websites and converts their
// content into clean, semantically faithful Markdown and structured data.
package main

import (
	cli "github.com/keruna/crawlkit/internal/cli"
)

func main() {
	cli.Execute()
}
