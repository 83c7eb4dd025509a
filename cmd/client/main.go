package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/aeolun/flatchat/pkg/client"
	"github.com/aeolun/flatchat/pkg/protocol"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
)

func main() {
	addr := flag.String("server", "localhost:9000", "Server address (host:port)")
	wsURL := flag.String("ws", "", "Connect via WebSocket instead (e.g. ws://localhost:9001/ws)")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("FlatChat Client %s\n", Version)
		os.Exit(0)
	}

	var (
		c   *client.Client
		err error
	)
	if *wsURL != "" {
		c, err = client.DialWebSocket(*wsURL)
	} else {
		c, err = client.Dial(*addr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection failed: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	fmt.Println("Connected. Type /help for commands.")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range c.Messages() {
			printMessage(msg)
		}
		if err := c.Err(); err != nil {
			fmt.Fprintf(os.Stderr, "Connection lost: %v\n", err)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			break
		}
		if err := handleInput(c, line); err != nil {
			fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
			break
		}
		select {
		case <-done:
			return
		default:
		}
	}
	c.Close()
	<-done
}

func handleInput(c *client.Client, line string) error {
	if !strings.HasPrefix(line, "/") {
		return c.SendGlobal(line)
	}

	parts := strings.SplitN(line, " ", 3)
	command := parts[0]
	arg := func(i int) string {
		if len(parts) > i {
			return parts[i]
		}
		return ""
	}

	switch command {
	case "/help":
		printHelp()
		return nil
	case "/register":
		return c.Register(arg(1), arg(2))
	case "/login":
		return c.Login(arg(1), arg(2))
	case "/logout":
		return c.Logout()
	case "/passwd":
		return c.ChangePassword(arg(1), arg(2))
	case "/msg":
		return c.SendPrivate(arg(1), arg(2))
	case "/who":
		return c.RequestOnlineList()
	case "/whois":
		return c.RequestUserInfo(arg(1))
	case "/ping":
		return c.Ping()
	case "/kick":
		return c.Admin(protocol.TypeKickUser, arg(1))
	case "/ban":
		return c.Admin(protocol.TypeBanUser, arg(1))
	case "/unban":
		return c.Admin(protocol.TypeUnbanUser, arg(1))
	case "/mute":
		return c.Admin(protocol.TypeMuteUser, arg(1))
	case "/unmute":
		return c.Admin(protocol.TypeUnmuteUser, arg(1))
	case "/promote":
		return c.Admin(protocol.TypePromoteUser, arg(1))
	case "/demote":
		return c.Admin(protocol.TypeDemoteUser, arg(1))
	case "/users":
		return c.Admin(protocol.TypeGetAllUsers, "")
	case "/banned":
		return c.Admin(protocol.TypeGetBannedList, "")
	case "/muted":
		return c.Admin(protocol.TypeGetMutedList, "")
	default:
		fmt.Printf("Unknown command %s, try /help\n", command)
		return nil
	}
}

func printMessage(msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeMsgGlobal:
		fmt.Printf("[%s] %s: %s\n", msg.Timestamp, msg.Sender, msg.Content)
	case protocol.TypeMsgPrivate:
		fmt.Printf("[%s] %s -> %s: %s\n", msg.Timestamp, msg.Sender, msg.Receiver, msg.Content)
	case protocol.TypeUserStatus:
		var status map[string]string
		json.Unmarshal([]byte(msg.Extra), &status)
		fmt.Printf("* %s is now %s\n", msg.Sender, status["status"])
	case protocol.TypeOnlineList:
		var users []string
		json.Unmarshal([]byte(msg.Extra), &users)
		fmt.Printf("* Online (%d): %s\n", len(users), strings.Join(users, ", "))
	case protocol.TypeUserInfo:
		fmt.Printf("* %s: %s\n", msg.Receiver, msg.Extra)
	case protocol.TypeOk:
		if msg.Extra != "" {
			fmt.Printf("OK: %s %s\n", msg.Content, msg.Extra)
		} else {
			fmt.Printf("OK: %s\n", msg.Content)
		}
	case protocol.TypeError:
		fmt.Printf("ERROR: %s\n", msg.Content)
	case protocol.TypeKicked, protocol.TypeBanned, protocol.TypeMuted, protocol.TypeUnmuted:
		fmt.Printf("! %s\n", msg.Content)
	case protocol.TypePong:
		fmt.Printf("* pong (%s)\n", msg.Timestamp)
	default:
		fmt.Printf("? %s %+v\n", msg.Type, msg)
	}
}

func printHelp() {
	fmt.Print(`Commands:
  /register <user> <pass>   Create an account
  /login <user> <pass>      Log in
  /logout                   Log out
  /passwd <old> <new>       Change password
  /msg <user> <text>        Private message
  /who                      List online users
  /whois [user]             Show user info
  /ping                     Heartbeat
  /kick /ban /unban /mute /unmute /promote /demote <user>   Admin commands
  /users /banned /muted     Admin lists
  /quit                     Exit
Anything else is sent to global chat.
`)
}
