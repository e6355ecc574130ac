// Command gatewayctl runs the API gateway core.
package main

import "github.com/Sentinel-Gate/Sentinelgate/cmd/gatewayctl/cmd"

func main() {
	cmd.Execute()
}
