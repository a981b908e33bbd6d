package main

import "github.com/tnyamukapa/rentpay/cmd"

func main() {
	cmd.Execute()
}
