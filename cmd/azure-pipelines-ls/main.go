package main

import "github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/cli"

func main() {
	cli.Execute()
}
