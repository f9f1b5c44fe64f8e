// Copyright (c) 2025 BVK Chaitanya

// Package telegram sends notifications to a telegram bot's users and runs
// bot commands sent by them.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bvk/pipwatch/ctxutil"
	"github.com/bvk/pipwatch/gobs"
	"github.com/bvk/pipwatch/kvutil"
	"github.com/bvk/pipwatch/syncmap"
	"github.com/bvkgo/kv"
	"github.com/visvasity/cli"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// MaxMessageSize is the max number of characters in a telegram message.
const MaxMessageSize = 4096

type CmdFunc = cli.CmdFunc

type Command struct {
	Purpose string
	Handler CmdFunc
}

type Client struct {
	cg ctxutil.CloseGroup

	db kv.Database

	loc *time.Location

	mu sync.Mutex

	bot *bot.Bot

	self *models.User

	secrets *Secrets

	state *gobs.TelegramState

	commandMap syncmap.Map[string, *Command]
}

var start = time.Now()

// New creates a telegram client and starts receiving bot updates. Message
// timestamps are printed in the given location.
func New(ctx context.Context, db kv.Database, secrets *Secrets, loc *time.Location) (*Client, error) {
	if err := secrets.Check(); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}

	c := &Client{
		db:      db,
		loc:     loc,
		secrets: secrets.Clone(),
	}

	b, err := bot.New(secrets.BotToken, bot.WithDefaultHandler(c.handler))
	if err != nil {
		return nil, fmt.Errorf("could not create telegram bot: %w", err)
	}
	c.bot = b

	self, err := b.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get bot user information: %w", err)
	}
	c.self = self

	state, err := kvutil.GetDB[gobs.TelegramState](ctx, db, c.stateKey())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		state = &gobs.TelegramState{
			UserChatIDMap: make(map[string]int64),
		}
	}
	c.state = state

	c.commandMap.Store("uptime", &Command{
		Purpose: "Prints pipwatch uptime",
		Handler: c.uptime,
	})
	c.commandMap.Store("version", &Command{
		Purpose: "Prints version information",
		Handler: c.version,
	})
	if err := c.setCommands(ctx); err != nil {
		return nil, err
	}

	c.cg.Go(func(ctx context.Context) {
		c.bot.Start(ctx)
	})
	return c, nil
}

func (c *Client) Close() error {
	c.cg.Close()
	return nil
}

func (c *Client) BotUserName() string {
	return c.self.Username
}

func (c *Client) OwnerUserName() string {
	return c.secrets.OwnerID
}

func (c *Client) stateKey() string {
	return path.Join("/telegram", c.self.Username, "state")
}

// AddCommand registers a new bot command. Handler output written to
// cli.Stdout is sent back as the reply.
func (c *Client) AddCommand(ctx context.Context, name, purpose string, handler CmdFunc) error {
	if len(name) == 0 || len(purpose) == 0 || handler == nil {
		return os.ErrInvalid
	}
	cdata := &Command{
		Purpose: purpose,
		Handler: handler,
	}
	if _, loaded := c.commandMap.LoadOrStore(name, cdata); loaded {
		return os.ErrExist
	}
	return c.setCommands(ctx)
}

func (c *Client) setCommands(ctx context.Context) error {
	var cmds []models.BotCommand
	for _, name := range syncmap.Keys(&c.commandMap) {
		cdata, _ := c.commandMap.Load(name)
		cmds = append(cmds, models.BotCommand{
			Command:     name,
			Description: cdata.Purpose,
		})
	}
	ok, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: cmds})
	if err != nil {
		return fmt.Errorf("could not set bot commands: %w", err)
	}
	if !ok {
		return fmt.Errorf("could not set bot commands")
	}
	return nil
}

// parseCommand splits a bot command message into the command name and its
// arguments. Command name is the first `length` bytes without the leading
// slash and an optional @botname suffix.
func parseCommand(text string, length int) (string, []string, error) {
	if length < 2 || length > len(text) || text[0] != '/' {
		return "", nil, os.ErrInvalid
	}
	cmd := text[1:length]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	args := strings.Fields(text[length:])
	return cmd, args, nil
}

func (c *Client) getCommand(update *models.Update) (string, []string, CmdFunc, error) {
	if update.Message == nil || len(update.Message.Entities) == 0 {
		return "", nil, nil, os.ErrInvalid
	}
	entity := update.Message.Entities[0]
	if entity.Type != models.MessageEntityTypeBotCommand || entity.Offset != 0 {
		return "", nil, nil, os.ErrInvalid
	}
	cmd, args, err := parseCommand(update.Message.Text, entity.Length)
	if err != nil {
		return "", nil, nil, err
	}
	cdata, ok := c.commandMap.Load(cmd)
	if !ok {
		return cmd, nil, nil, fmt.Errorf("command %q: %w", cmd, os.ErrNotExist)
	}
	return cmd, args, cdata.Handler, nil
}

// splitText splits the text into chunks of at most `limit` bytes, preferring
// line boundaries.
func splitText(text string, limit int) []string {
	var chunks []string
	for len(text) > limit {
		i := strings.LastIndexByte(text[:limit], '\n')
		if i <= 0 {
			i = limit
		}
		chunks = append(chunks, text[:i])
		text = strings.TrimPrefix(text[i:], "\n")
	}
	if len(text) != 0 {
		chunks = append(chunks, text)
	}
	return chunks
}

// SendMessage sends the text prefixed with the timestamp to the owner and
// other users with known chat ids.
func (c *Client) SendMessage(ctx context.Context, at time.Time, text string) error {
	c.mu.Lock()
	chatIDs := make(map[string]int64)
	for _, user := range c.secrets.receivers() {
		if id, ok := c.state.UserChatIDMap[user]; ok {
			chatIDs[user] = id
		} else {
			slog.Warn("could not notify receiver without chat id", "receiver", user)
		}
	}
	c.mu.Unlock()

	msg := at.In(c.loc).Format("2006-01-02 15:04:05 MST") + " " + text
	var errs []error
	for user, cid := range chatIDs {
		for _, chunk := range splitText(msg, MaxMessageSize) {
			if _, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: cid, Text: chunk}); err != nil {
				slog.Error("could not notify receiver", "receiver", user, "err", err)
				errs = append(errs, err)
				break
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Client) handler(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	sender := update.Message.From.Username
	if !c.secrets.isValidUser(sender) {
		slog.Warn("received message from unknown user (ignored)", "sender", sender, "message", update.Message.Text)
		return
	}

	if err := c.updateChatIDs(ctx, update); err != nil {
		slog.Warn("could not update chat id values (ignored)", "err", err)
	}

	if err := c.respond(ctx, update); err != nil {
		slog.Error("could not respond to user command (ignored)", "user", sender, "err", err)
	}
}

func (c *Client) respond(ctx context.Context, update *models.Update) error {
	reply := ""
	cmd, args, handler, err := c.getCommand(update)
	if err != nil {
		reply = err.Error()
	} else {
		var sb strings.Builder
		if err := handler(cli.WithStdout(ctx, &sb), args); err != nil {
			slog.Error("could not handle user command", "cmd", cmd, "user", update.Message.From.Username, "err", err)
			reply = err.Error()
		} else {
			reply = sb.String()
		}
	}

	disabled := true
	for _, chunk := range splitText(reply, MaxMessageSize) {
		p := &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   chunk,
			ReplyParameters: &models.ReplyParameters{
				MessageID: update.Message.ID,
			},
			LinkPreviewOptions: &models.LinkPreviewOptions{
				IsDisabled: &disabled,
			},
		}
		if _, err := c.bot.SendMessage(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) updateChatIDs(ctx context.Context, update *models.Update) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sender := update.Message.From.Username
	if id, ok := c.state.UserChatIDMap[sender]; ok && id == update.Message.Chat.ID {
		return nil
	}
	c.state.UserChatIDMap[sender] = update.Message.Chat.ID
	slog.Info("updating chat id for authorized user", "user", sender, "chat-id", update.Message.Chat.ID)

	if err := kvutil.SetDB(ctx, c.db, c.stateKey(), c.state); err != nil {
		return fmt.Errorf("could not save telegram state: %w", err)
	}
	return nil
}

func (c *Client) uptime(ctx context.Context, args []string) error {
	stdout := cli.Stdout(ctx)
	const day = 24 * time.Hour
	d := time.Since(start).Truncate(time.Second)
	if d < day {
		fmt.Fprintf(stdout, "%v", d)
		return nil
	}
	fmt.Fprintf(stdout, "%dd%v", d/day, d%day)
	return nil
}

func (c *Client) version(ctx context.Context, _ []string) error {
	stdout := cli.Stdout(ctx)
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return fmt.Errorf("could not read build information")
	}
	// Dependency versions can overflow the message size limits.
	fmt.Fprintln(stdout, "Go:", info.GoVersion)
	fmt.Fprintln(stdout, "Main Module Path:", info.Main.Path)
	fmt.Fprintln(stdout, "Main Module Version:", info.Main.Version)
	for _, s := range info.Settings {
		if slices.Contains([]string{"vcs.revision", "vcs.time", "vcs.modified"}, s.Key) {
			fmt.Fprintln(stdout, s.Key+":", s.Value)
		}
	}
	return nil
}
