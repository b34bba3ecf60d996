package telegrambot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ericfisherdev/releasewatch/internal/application"
)

// Request is the parsed input handed to a command handler.
type Request struct {
	ExternalID int64
	Args       string
}

// HandlerFunc produces the plain-text reply for a command.
type HandlerFunc func(ctx context.Context, req Request) (string, error)

// Command is one registered bot command.
type Command struct {
	Name        string
	Description string
	// RequiresArgs makes the bot answer "Empty message?" instead of running
	// the handler when no arguments follow the command.
	RequiresArgs   bool
	DisablePreview bool
	Handle         HandlerFunc
}

// CommandTable holds the bot commands in registration order.
type CommandTable struct {
	commands []Command
	byName   map[string]int
}

// NewCommandTable registers the subscription commands backed by subs.
func NewCommandTable(subs *application.SubscriptionService) *CommandTable {
	t := &CommandTable{byName: make(map[string]int)}

	t.Register(Command{
		Name:        "start",
		Description: "base command for user registration",
		Handle:      t.help,
	})
	t.Register(Command{
		Name:        "help",
		Description: "view all commands",
		Handle:      t.help,
	})
	t.Register(Command{
		Name:           "my_subscriptions",
		Description:    "view all subscriptions",
		DisablePreview: true,
		Handle: func(ctx context.Context, req Request) (string, error) {
			repos, err := subs.ListSubscriptions(ctx, req.ExternalID)
			if err != nil {
				return "", err
			}

			var sb strings.Builder
			for _, r := range repos {
				tag := r.StoredTag()
				if tag == "" {
					tag = "<fetch in progress>"
				}
				sb.WriteString("\n" + tag + " - " + r.URL)
			}

			if sb.Len() == 0 {
				return "Subscriptions: empty", nil
			}
			return "Subscriptions: " + sb.String(), nil
		},
	})
	t.Register(Command{
		Name:         "subscribe",
		Description:  "[github repo urls] subscribe to the new GitHub repository",
		RequiresArgs: true,
		Handle: func(ctx context.Context, req Request) (string, error) {
			if _, err := subs.Subscribe(ctx, req.ExternalID, strings.Fields(req.Args)); err != nil {
				return "", err
			}
			return "Successfully subscribed!", nil
		},
	})
	t.Register(Command{
		Name:         "unsubscribe",
		Description:  "[github repo urls] unsubscribe from the GitHub repository",
		RequiresArgs: true,
		Handle: func(ctx context.Context, req Request) (string, error) {
			if _, err := subs.Unsubscribe(ctx, req.ExternalID, strings.Fields(req.Args)); err != nil {
				return "", err
			}
			return "Successfully unsubscribed!", nil
		},
	})
	t.Register(Command{
		Name:        "remove_all_subscriptions",
		Description: "remove all exists subscriptions",
		Handle: func(ctx context.Context, req Request) (string, error) {
			if _, err := subs.RemoveAll(ctx, req.ExternalID); err != nil {
				return "", err
			}
			return "Successfully unsubscribed!", nil
		},
	})

	return t
}

// Register appends a command. A later registration with the same name replaces
// the handler but keeps the original position.
func (t *CommandTable) Register(c Command) {
	if i, ok := t.byName[c.Name]; ok {
		t.commands[i] = c
		return
	}
	t.byName[c.Name] = len(t.commands)
	t.commands = append(t.commands, c)
}

// List returns the commands in registration order.
func (t *CommandTable) List() []Command {
	return t.commands
}

// Lookup finds the command addressed by msg. Non-command messages and unknown
// commands are not found.
func (t *CommandTable) Lookup(msg *tgbotapi.Message) (Command, bool) {
	if !msg.IsCommand() {
		return Command{}, false
	}
	i, ok := t.byName[msg.Command()]
	if !ok {
		return Command{}, false
	}
	return t.commands[i], true
}

// HelpText lists every command as "/name - description", one per line.
func (t *CommandTable) HelpText() string {
	lines := make([]string, 0, len(t.commands))
	for _, c := range t.commands {
		lines = append(lines, "/"+c.Name+" - "+c.Description)
	}
	return strings.Join(lines, "\n")
}

// HelpMarkdown lists every command as a markdown bullet, for the web dashboard.
func (t *CommandTable) HelpMarkdown() string {
	var sb strings.Builder
	for _, c := range t.commands {
		sb.WriteString("- `/" + c.Name + "` " + c.Description + "\n")
	}
	return sb.String()
}

func (t *CommandTable) help(_ context.Context, _ Request) (string, error) {
	return t.HelpText(), nil
}
