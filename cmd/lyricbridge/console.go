package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lisuiheng/lyricbridge/logger"
)

// consoleTarget is the part of the connector the console drives.
type consoleTarget interface {
	StartConnection() error
	DisconnectWebsocket() error
	SelectSession(id string) error
	SendCoverImage(data []byte) error
}

const consoleHelp = "commands: connect, disconnect, select <session>, cover <file>, quit"

// runConsole executes one command per input line until quit or EOF.
func runConsole(ctx context.Context, r io.Reader, target consoleTarget, quit func()) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		done, err := execConsole(scanner.Text(), target)
		if err != nil {
			logger.Warn("Console command failed", "error", err)
		}
		if done {
			quit()
			return
		}
	}
}

func execConsole(line string, target consoleTarget) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch cmd, args := fields[0], fields[1:]; cmd {
	case "connect":
		return false, target.StartConnection()
	case "disconnect":
		return false, target.DisconnectWebsocket()
	case "select":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: select <session>")
		}
		return false, target.SelectSession(args[0])
	case "cover":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: cover <file>")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return false, fmt.Errorf("failed to read cover: %w", err)
		}
		return false, target.SendCoverImage(data)
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Println(consoleHelp)
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %q (%s)", cmd, consoleHelp)
	}
}
