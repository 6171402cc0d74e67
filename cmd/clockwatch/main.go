package main

import "tn-work/cmd/clockwatch/arg"

func main() {
	arg.Execute()
}
