// Package main provides a terminal chat client for the chatd WebSocket endpoint.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

var (
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// Message types
const (
	TypeHello    = "hello"
	TypeHelloAck = "hello_ack"
	TypeChat     = "chat"
	TypeCancel   = "cancel"
	TypeContent  = "content"
	TypeDone     = "done"
	TypeError    = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type           string `json:"type"`
	Ts             int64  `json:"ts"`
	RequestID      string `json:"request_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// HelloMessage identifies the user.
type HelloMessage struct {
	BaseMessage
	UserID string `json:"user_id"`
}

// ChatMessage starts a turn.
type ChatMessage struct {
	BaseMessage
	Message string `json:"message"`
}

// ServerMessage is the union of frames sent by the server.
type ServerMessage struct {
	BaseMessage
	ConnectionID string `json:"connection_id,omitempty"`
	Content      string `json:"content,omitempty"`
	MessageID    string `json:"message_id,omitempty"`
	Truncated    bool   `json:"truncated,omitempty"`
	Code         string `json:"code,omitempty"`
	Message      string `json:"message,omitempty"`
}

// Client represents a WebSocket client.
type Client struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	done    chan struct{}
	turnEnd chan struct{}
	lost    chan struct{}
}

// NewClient creates a new client and connects to the server.
func NewClient(addr string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &Client{
		conn:    conn,
		done:    make(chan struct{}),
		turnEnd: make(chan struct{}, 1),
		lost:    make(chan struct{}),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	close(c.done)
	return c.conn.Close()
}

func (c *Client) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// SendHello sends a hello message and waits for hello_ack.
func (c *Client) SendHello(userID string) (string, error) {
	msg := HelloMessage{
		BaseMessage: BaseMessage{Type: TypeHello, Ts: time.Now().UnixMilli()},
		UserID:      userID,
	}
	if err := c.write(msg); err != nil {
		return "", fmt.Errorf("write hello: %w", err)
	}

	var ack ServerMessage
	if err := c.conn.ReadJSON(&ack); err != nil {
		return "", fmt.Errorf("read hello_ack: %w", err)
	}
	if ack.Type == TypeError {
		return "", fmt.Errorf("hello failed: %s - %s", ack.Code, ack.Message)
	}
	if ack.Type != TypeHelloAck {
		return "", fmt.Errorf("expected hello_ack, got: %s", ack.Type)
	}
	return ack.ConnectionID, nil
}

// SendChat starts a turn on a conversation.
func (c *Client) SendChat(conversationID, content string) error {
	return c.write(ChatMessage{
		BaseMessage: BaseMessage{
			Type:           TypeChat,
			Ts:             time.Now().UnixMilli(),
			RequestID:      fmt.Sprintf("req_%d", time.Now().UnixNano()),
			ConversationID: conversationID,
		},
		Message: content,
	})
}

// SendCancel stops the turn in flight on a conversation.
func (c *Client) SendCancel(conversationID string) error {
	return c.write(BaseMessage{
		Type:           TypeCancel,
		Ts:             time.Now().UnixMilli(),
		ConversationID: conversationID,
	})
}

// ReadMessages prints increments as they arrive and signals turnEnd on the
// terminal frame of a turn.
func (c *Client) ReadMessages() {
	defer close(c.lost)
	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("Read error: %v", err)
			}
			return
		}

		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Unmarshal error: %v", err)
			continue
		}

		switch msg.Type {
		case TypeContent:
			fmt.Print(msg.Content)
		case TypeDone:
			if msg.Truncated {
				fmt.Print(warnStyle.Render(" [truncated]"))
			}
			fmt.Println()
			c.endTurn()
		case TypeError:
			fmt.Println(errorStyle.Render(fmt.Sprintf("[%s] %s", msg.Code, msg.Message)))
			c.endTurn()
		default:
			fmt.Println(infoStyle.Render(fmt.Sprintf("[%s] %s", msg.Type, string(data))))
		}
	}
}

func (c *Client) endTurn() {
	select {
	case c.turnEnd <- struct{}{}:
	default:
	}
}

// waitTurn blocks until the running turn ends. Ctrl+C cancels it.
func (c *Client) waitTurn(conversationID string, interrupt <-chan os.Signal) bool {
	for {
		select {
		case <-c.turnEnd:
			return true
		case <-interrupt:
			if err := c.SendCancel(conversationID); err != nil {
				log.Printf("Send error: %v", err)
			}
		case <-c.lost:
			fmt.Println(errorStyle.Render("connection lost"))
			return false
		}
	}
}

// historyFile is where prompt history is kept between runs.
func historyFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "chatd", "chatcli_history")
}

func run(addr, userID, conversationID string) error {
	log.SetFlags(log.Ltime)

	fmt.Println(infoStyle.Render("Connecting to " + addr + "..."))
	client, err := NewClient(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	connID, err := client.SendHello(userID)
	if err != nil {
		return err
	}

	fmt.Printf("Connected as %s (connection %s)\n", userID, connID)
	fmt.Println(infoStyle.Render("Commands: /chat <conversation_id>, /quit. Ctrl+C stops a running answer."))

	go client.ReadMessages()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	history := historyFile()
	if f, err := os.Open(history); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if err := os.MkdirAll(filepath.Dir(history), 0o700); err != nil {
			return
		}
		if f, err := os.OpenFile(history, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	for {
		input, err := line.Prompt("> ")
		if err != nil {
			// Ctrl+C at the prompt or end of input.
			fmt.Println("Bye!")
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch {
		case input == "/quit":
			fmt.Println("Bye!")
			return nil
		case strings.HasPrefix(input, "/chat "):
			conversationID = strings.TrimSpace(strings.TrimPrefix(input, "/chat "))
			fmt.Println(infoStyle.Render("Using conversation " + conversationID))
		case conversationID == "":
			fmt.Println(warnStyle.Render("Select a conversation first with /chat <conversation_id>"))
		default:
			if err := client.SendChat(conversationID, input); err != nil {
				return fmt.Errorf("send chat: %w", err)
			}
			if !client.waitTurn(conversationID, interrupt) {
				return nil
			}
		}
	}
}

func main() {
	var addr, userID, conversationID string

	cmd := &cobra.Command{
		Use:          "chatcli",
		Short:        "Chat with chatd over WebSocket",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(addr, userID, conversationID)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "ws://localhost:8080/ws", "WebSocket server address")
	cmd.Flags().StringVar(&userID, "user", "cli-user", "User id sent in hello")
	cmd.Flags().StringVar(&conversationID, "chat", "", "Conversation id to talk to")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
