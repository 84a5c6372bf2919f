// Command chatcli is a terminal client for the QuickChat relay.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"quickchat/internal/app/user"
	"quickchat/internal/client"
	"quickchat/internal/pkg/logx"
)

const helpText = `Commands:
  /users            list users with presence and unread counts
  /open <n|name>    open a conversation (number from /users or name prefix)
  /close            close the current conversation
  /mute [n|name]    stop unread counting for a user (default: current)
  /unmute [n|name]
  /block [n|name]   hide messages from a user (default: current)
  /unblock [n|name]
  /help
  /quit
Any other line is sent to the open conversation.`

type cli struct {
	session *client.Session
	api     *client.APIClient
	self    user.User

	mu    sync.Mutex
	users []user.User
	shown int
}

func main() {
	server := flag.String("server", "http://localhost:5000", "QuickChat server base URL")
	email := flag.String("email", "", "account email (guest account when empty)")
	password := flag.String("password", "", "account password")
	prefsDir := flag.String("prefs", defaultPrefsDir(), "directory for local mute/block preferences")
	debug := flag.Bool("debug", false, "verbose logging on stderr")
	flag.Parse()

	logx.InitGlobalLogger(*debug)
	if !*debug {
		logx.SetOutput(os.Stderr)
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.NewAPIClient(*server, nil)

	var (
		identity client.Identity
		err      error
	)
	if *email == "" {
		identity, err = api.CreateGuest(ctx)
	} else {
		identity, err = api.Login(ctx, *email, *password)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign-in failed: %v\n", err)
		os.Exit(1)
	}

	c := &cli{api: api, self: identity.User}
	transport := client.NewWSTransport(wsURL(*server), identity.User.ID)
	c.session = client.NewSession(identity.User.ID, transport, api,
		client.NewFilePrefStore(*prefsDir, identity.User.ID),
		client.WithChangeHandler(c.onChange))

	go transport.Run(ctx, c.session)

	fmt.Printf("Signed in as %s (%s)\n%s\n", identity.User.DisplayName, identity.User.ID, helpText)

	if err := c.refreshUsers(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "could not load users: %v\n", err)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := c.handleLine(ctx, strings.TrimSpace(line)); quit {
				return
			}
		}
	}
}

func (c *cli) handleLine(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.send(line)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Println(helpText)
	case "/users":
		if err := c.refreshUsers(ctx); err != nil {
			fmt.Printf("! %v\n", err)
		}
	case "/open":
		u, ok := c.resolve(arg)
		if !ok {
			fmt.Println("! unknown user")
			return false
		}
		if err := c.session.SelectPeer(ctx, u.ID); err != nil {
			fmt.Printf("! %v\n", err)
		}
	case "/close":
		_ = c.session.SelectPeer(ctx, "")
	case "/mute", "/unmute", "/block", "/unblock":
		id, ok := c.target(arg)
		if !ok {
			fmt.Println("! no user selected")
			return false
		}
		map[string]func(string){
			"/mute":    c.session.Mute,
			"/unmute":  c.session.Unmute,
			"/block":   c.session.Block,
			"/unblock": c.session.Unblock,
		}[cmd](id)
		fmt.Printf("* %s %s\n", strings.TrimPrefix(cmd, "/"), c.nameOf(id))
	default:
		fmt.Println("! unknown command, try /help")
	}
	return false
}

func (c *cli) send(text string) {
	err := c.session.Send(text, "")
	switch {
	case err == nil:
	case errors.Is(err, client.ErrNoActivePeer):
		fmt.Println("! open a conversation first: /open <n|name>")
	default:
		fmt.Printf("! %v\n", err)
	}
}

func (c *cli) refreshUsers(ctx context.Context) error {
	users, err := c.api.ListUsers(ctx, c.self.ID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.users = users
	c.mu.Unlock()

	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	if err := c.session.HydrateUnread(ctx, ids); err != nil {
		fmt.Fprintf(os.Stderr, "unread counts incomplete: %v\n", err)
	}

	c.printUsers()
	return nil
}

func (c *cli) printUsers() {
	state := c.session.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, u := range c.users {
		status := "offline"
		if c.session.IsOnline(u.ID) {
			status = "online"
		}
		badge := ""
		if n := state.Unread[u.ID]; n > 0 {
			badge = fmt.Sprintf(" (%d unread)", n)
		}
		fmt.Printf("%2d. %-24s %-7s%s\n", i+1, u.DisplayName, status, badge)
	}
}

// resolve finds a user by 1-based list number or case-insensitive display-name prefix.
func (c *cli) resolve(arg string) (user.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(c.users) {
		return c.users[n-1], true
	}
	if arg == "" {
		return user.User{}, false
	}
	for _, u := range c.users {
		if strings.HasPrefix(strings.ToLower(u.DisplayName), strings.ToLower(arg)) {
			return u, true
		}
	}
	return user.User{}, false
}

func (c *cli) target(arg string) (string, bool) {
	if arg == "" {
		peer := c.session.Snapshot().ActivePeer
		return peer, peer != ""
	}
	u, ok := c.resolve(arg)
	return u.ID, ok
}

func (c *cli) nameOf(id string) string {
	if id == c.self.ID {
		return "you"
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range c.users {
		if u.ID == id {
			return u.DisplayName
		}
	}
	return id
}

// onChange renders the parts of the state that moved.
func (c *cli) onChange(change client.Change) {
	state := c.session.Snapshot()

	switch change {
	case client.ChangeMessages:
		c.mu.Lock()
		if len(state.Messages) < c.shown {
			c.shown = 0
		}
		start := c.shown
		c.shown = len(state.Messages)
		c.mu.Unlock()

		for _, m := range state.Messages[start:] {
			body := m.Text
			if m.ImageURL != "" {
				body = strings.TrimSpace(body + " [image]")
			}
			fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), c.nameOf(m.SenderID), body)
		}
	case client.ChangeError:
		if state.Error != "" {
			fmt.Printf("! %s\n", state.Error)
		}
	case client.ChangeConnection:
		if state.ConnectionError != "" {
			fmt.Printf("! %s\n", state.ConnectionError)
		}
	case client.ChangeUnread:
		for id, n := range state.Unread {
			if id != state.ActivePeer && n > 0 {
				fmt.Printf("* %s: %d unread\n", c.nameOf(id), n)
			}
		}
	}
}

func wsURL(server string) string {
	base := strings.TrimRight(server, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	}
	return base + "/ws"
}

func defaultPrefsDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".quickchat"
	}
	return filepath.Join(dir, "quickchat")
}
