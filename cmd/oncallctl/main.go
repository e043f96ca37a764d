package main

import "github.com/phonginreallife/oncall-notifier/cmd/oncallctl/cmd"

func main() {
	cmd.Execute()
}
