package main

import (
	"kadai-backend/cmd/kadai-cli/commands"
	"kadai-backend/lib/util/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
