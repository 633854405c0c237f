// Command ticketctl is a command-line client for the ticketd HTTP API.
//
// Example usage:
//
//	ticketctl create --title "t1" --description "d1"
//	ticketctl get 1
//	ticketctl update 1 --title "t2" --description "d2" --status InProgress
//	ticketctl list --format json
//	ticketctl stats
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ticketctl:", err)
		os.Exit(1)
	}
}
