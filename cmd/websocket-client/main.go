package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/omochice/realtime-chat/internal/client/ws"
	"github.com/omochice/realtime-chat/pkg/protocol"
)

const help = `Commands:
  /join N      subscribe to conversation N
  /leave N     unsubscribe from conversation N
  /use N       send plain lines to conversation N
  /read N      mark conversation N as read
  /start U     start a conversation with user U
  /typing      tell the current conversation you are typing
  /list        list your conversations
  /online      list online users
  /quit        exit
Any other line is sent as a message to the current conversation.`

func main() {
	serverAddr := flag.String("server", "ws://localhost:8080/ws", "WebSocket endpoint (e.g., ws://localhost:8080/ws)")
	token := flag.String("token", os.Getenv("CHAT_TOKEN"), "Bearer token (defaults to $CHAT_TOKEN)")
	flag.Parse()

	if *token == "" {
		log.Fatal("Token is required. Use -token flag or CHAT_TOKEN")
	}

	c := ws.New(*serverAddr, *token, nil)
	if err := c.Connect(); err != nil {
		log.Fatalf("Failed to connect to server: %v", err)
	}
	defer c.Disconnect()

	log.Printf("Connected to %s", *serverAddr)
	fmt.Println(help)

	go func() {
		for ev := range c.Events() {
			printEvent(ev)
		}
		log.Println("Connection closed by server")
		os.Exit(0)
	}()

	var current int64
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "/quit" || text == "quit" || text == "exit" {
			break
		}
		if !strings.HasPrefix(text, "/") {
			if current == 0 {
				log.Println("No conversation selected. Use /use N")
				continue
			}
			if err := c.SendMessage(current, text); err != nil {
				log.Printf("Failed to send message: %v", err)
			}
			continue
		}

		cmd, arg, _ := strings.Cut(text, " ")
		var err error
		switch cmd {
		case "/join", "/leave", "/use", "/read", "/start":
			var n int64
			n, err = strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
			if err != nil {
				log.Printf("%s needs a numeric argument", cmd)
				continue
			}
			switch cmd {
			case "/join":
				err = c.Join(n)
				current = n
			case "/leave":
				err = c.Leave(n)
			case "/use":
				current = n
			case "/read":
				err = c.MarkAsRead(n, nil)
			case "/start":
				err = c.StartConversation(n)
			}
		case "/typing":
			err = c.StartTyping(current)
		case "/list":
			err = c.GetConversations()
		case "/online":
			err = c.GetOnlineUsers()
		default:
			fmt.Println(help)
		}
		if err != nil {
			log.Printf("Command failed: %v", err)
		}
	}

	if err := scanner.Err(); err != nil {
		log.Printf("Error reading input: %v", err)
	}
	log.Println("Disconnected from server")
}

func printEvent(ev protocol.Event) {
	switch ev.Name {
	case protocol.EventNewMessage:
		var m protocol.NewMessage
		if err := ev.Bind(&m); err == nil {
			fmt.Printf("[%d] %s: %s\n", m.ConversationID, m.Sender.Username, m.Content)
			return
		}
	case protocol.EventUserTyping:
		var t protocol.UserTyping
		if err := ev.Bind(&t); err == nil {
			fmt.Printf("[%d] %s is typing...\n", t.ConversationID, t.Username)
			return
		}
	case protocol.EventUserStoppedTyping:
		return
	case protocol.EventUserOnline, protocol.EventUserOffline:
		fmt.Printf("*** user %s is %s ***\n", ev.Data, strings.TrimPrefix(ev.Name, "user_"))
		return
	case protocol.EventConversationsList:
		var list []protocol.Conversation
		if err := ev.Bind(&list); err == nil {
			for _, conv := range list {
				fmt.Printf("  #%d with %s\n", conv.ID, conv.OtherUser.Username)
			}
			return
		}
	case protocol.EventError:
		var e protocol.Error
		if err := ev.Bind(&e); err == nil {
			fmt.Printf("!!! %s\n", e.Message)
			return
		}
	}
	out, _ := json.Marshal(ev)
	fmt.Println(string(out))
}
