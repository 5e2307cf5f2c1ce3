// Command hass-gate is an MCP gateway to a Home Assistant hub.
package main

import "github.com/hass-gate/hassgate/cmd/hass-gate/cmd"

func main() {
	cmd.Execute()
}
