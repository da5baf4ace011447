package main

import "github.com/surge-downloader/gridsync/cmd"

func main() {
	cmd.Execute()
}
