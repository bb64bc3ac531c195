// Command ahd is the account-holder device CLI: the interactive front end
// for creating banks, accounts, and devices, issuing checks, and running
// promissory-note transfers entirely from the command line.
package main

import "github.com/offlinecheck/checkbook/cli"

func main() {
	cli.New().Run()
}
