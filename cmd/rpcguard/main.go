// Command rpcguard serves RPC methods behind admission-control interceptors.
package main

import "github.com/Sentinel-Gate/rpcguard/cmd/rpcguard/cmd"

func main() {
	cmd.Execute()
}
