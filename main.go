package main

import "github.com/yeremiapane/restaurant-orders/cli"

func main() {
	cli.Execute()
}
