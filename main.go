/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "botkit/cmd"

func main() {
	cmd.Execute()
}
