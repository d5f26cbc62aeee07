// Command hrgate serves HR directory tools over the Model Context Protocol.
package main

import "github.com/Sentinel-Gate/hrgate/cmd/hrgate/cmd"

func main() {
	cmd.Execute()
}
