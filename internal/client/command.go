package client

import (
	"fmt"
	"strings"

	"scpchat/pkg/protocol"
)

// Command is one parsed input line. Message is the request to send, if any.
type Command struct {
	Message protocol.Message
	Help    bool
	// Quit ends the client after Message (a Disconnect) is sent.
	Quit bool
}

// HelpText lists the commands ParseCommand understands.
const HelpText = `Commands:
  /connect <username>
  /join <room_id>
  /leave
  /msg <message>
  /priv <username> <message>
  /rooms
  /users
  /ping
  /help
  /quit`

// ParseCommand turns a line of user input into a Command.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, ErrEmptyCommand
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "/connect":
		if rest == "" {
			return Command{}, &UsageError{Usage: "/connect <username>"}
		}
		return Command{Message: protocol.Connect{Username: rest}}, nil
	case "/join":
		if rest == "" {
			return Command{}, &UsageError{Usage: "/join <room_id>"}
		}
		return Command{Message: protocol.JoinRoom{RoomID: rest}}, nil
	case "/leave":
		return Command{Message: protocol.LeaveRoom{}}, nil
	case "/msg":
		if rest == "" {
			return Command{}, &UsageError{Usage: "/msg <message>"}
		}
		return Command{Message: protocol.SendMessage{Content: rest}}, nil
	case "/priv":
		target, content, _ := strings.Cut(rest, " ")
		content = strings.TrimSpace(content)
		if target == "" || content == "" {
			return Command{}, &UsageError{Usage: "/priv <username> <message>"}
		}
		return Command{Message: protocol.PrivateMessage{TargetUser: target, Content: content}}, nil
	case "/rooms":
		return Command{Message: protocol.ListRooms{}}, nil
	case "/users":
		return Command{Message: protocol.ListUsers{}}, nil
	case "/ping":
		return Command{Message: protocol.Ping{}}, nil
	case "/help":
		return Command{Help: true}, nil
	case "/quit":
		return Command{Message: protocol.Disconnect{}, Quit: true}, nil
	default:
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
}
