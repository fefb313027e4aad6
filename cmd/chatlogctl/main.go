// Command chatlogctl administers the chat log index from the shell: it
// reindexes channels, runs searches, and shows how text is encoded.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/cmd/chatlogctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
