// Command spendguard runs the spend-policy daemon and its CLI.
package main

import "github.com/spendguard/spendguard/internal/cli"

func main() {
	cli.Execute()
}
