package main

import "github.com/xiaot623/gogo/livesession/internal/cmd"

func main() {
	cmd.Execute()
}
