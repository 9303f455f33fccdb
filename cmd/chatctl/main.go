package main

import (
	"bufio"
	"chat-relay/domain"
	"chat-relay/infrastructure/grpc/api"
	"chat-relay/infrastructure/grpc/client"
	"chat-relay/infrastructure/ws"
	"chat-relay/projection"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

type Config struct {
	GrpcAddr string        `env:"CHATCTL_GRPC_ADDR,default=localhost:8080"`
	WsURL    string        `env:"CHATCTL_WS_URL,default=http://localhost:8090"`
	Token    string        `env:"CHATCTL_TOKEN"`
	UserID   string        `env:"CHATCTL_USER_ID"`
	Timeout  time.Duration `env:"CHATCTL_TIMEOUT,default=10s"`
}

const usage = `usage: chatctl <command> [flags]

commands:
  register -email -password -name   create an account and print its token
  login    -email -password         print a token for an existing account
  rooms                             list your rooms
  users    [-id]                    list the user directory, or one user
  open     -peer                    open the private room with a user
  group    -name -members a,b       create a group room
  history  -room [-limit -before]   print recent messages
  search   -room -q [-limit]        full-text search in a room
  stats                             relay counters
  chat     -room                    live session: lines from stdin are posted
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, color.Red.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return nil
	}

	relay, err := client.Dial(config.GrpcAddr)
	if err != nil {
		return err
	}
	defer relay.Close()
	if config.Token != "" {
		relay.UseToken(config.Token, domain.UserID(config.UserID))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command, flags := args[0], flag.NewFlagSet(args[0], flag.ContinueOnError)
	switch command {
	case "register", "login":
		email := flags.String("email", "", "account email")
		password := flags.String("password", "", "account password")
		name := flags.String("name", "", "display name")
		if err := flags.Parse(args[1:]); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, config.Timeout)
		defer cancel()
		if command == "register" {
			err = relay.Register(callCtx, *email, *password, *name)
		} else {
			err = relay.Login(callCtx, *email, *password)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "export CHATCTL_TOKEN=%s\nexport CHATCTL_USER_ID=%s\n", relay.Token(), relay.UserID())
		return nil

	case "rooms":
		callCtx, cancel := context.WithTimeout(ctx, config.Timeout)
		defer cancel()
		rooms, err := relay.ListRooms(callCtx)
		if err != nil {
			return err
		}
		printRooms(out, rooms...)
		return nil

	case "users":
		id := flags.String("id", "", "only this user")
		if err := flags.Parse(args[1:]); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, config.Timeout)
		defer cancel()
		if *id != "" {
			user, err := relay.GetUser(callCtx, domain.UserID(*id))
			if err != nil {
				return err
			}
			printUsers(out, user)
			return nil
		}
		users, err := relay.ListUsers(callCtx)
		if err != nil {
			return err
		}
		printUsers(out, users...)
		return nil

	case "open":
		peer := flags.String("peer", "", "user id of the peer")
		if err := flags.Parse(args[1:]); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, config.Timeout)
		defer cancel()
		room, err := relay.OpenPrivateRoom(callCtx, domain.UserID(*peer))
		if err != nil {
			return err
		}
		printRooms(out, room)
		return nil

	case "group":
		name := flags.String("name", "", "group name")
		members := flags.String("members", "", "comma separated user ids")
		if err := flags.Parse(args[1:]); err != nil {
			return err
		}
		ids := lo.FilterMap(strings.Split(*members, ","), func(s string, _ int) (domain.UserID, bool) {
			s = strings.TrimSpace(s)
			return domain.UserID(s), s != ""
		})
		callCtx, cancel := context.WithTimeout(ctx, config.Timeout)
		defer cancel()
		room, err := relay.CreateGroupRoom(callCtx, *name, ids...)
		if err != nil {
			return err
		}
		printRooms(out, room)
		return nil

	case "history", "search":
		room := flags.String("room", "", "room id")
		limit := flags.Int("limit", 0, "maximum number of messages")
		before := flags.Int64("before", 0, "only messages strictly before this sequence")
		query := flags.String("q", "", "search query")
		if err := flags.Parse(args[1:]); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, config.Timeout)
		defer cancel()
		var messages []domain.Message
		if command == "history" {
			messages, err = relay.GetHistory(callCtx, domain.RoomID(*room), *limit, *before)
		} else {
			messages, err = relay.SearchMessages(callCtx, domain.RoomID(*room), *query, *limit)
		}
		if err != nil {
			return err
		}
		printMessages(out, messages)
		return nil

	case "stats":
		callCtx, cancel := context.WithTimeout(ctx, config.Timeout)
		defer cancel()
		stats, err := relay.Stats(callCtx)
		if err != nil {
			return err
		}
		printStats(out, stats)
		return nil

	case "chat":
		room := flags.String("room", "", "room to post into")
		if err := flags.Parse(args[1:]); err != nil {
			return err
		}
		if relay.Token() == "" {
			return fmt.Errorf("CHATCTL_TOKEN is required, run login first")
		}
		return chat(ctx, config, relay, domain.RoomID(*room), os.Stdin, out)

	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// chat joins every room of the user, backfills the target room and relays
// stdin lines as messages until stdin closes or ctx is done.
func chat(ctx context.Context, config Config, relay *client.RelayClient, roomID domain.RoomID, in io.Reader, out io.Writer) error {
	live, err := ws.Dial(config.WsURL, relay.Token())
	if err != nil {
		return err
	}
	defer live.Close()

	timeline := projection.NewTimeline(live.Welcome().UserID)
	timeline.SetOnline(live.Welcome().OnlineUsers)
	if _, err := live.JoinRooms(); err != nil {
		return err
	}
	history, err := relay.GetHistory(ctx, roomID, 20, 0)
	if err != nil {
		return err
	}
	timeline.Backfill(roomID, history)
	printMessages(out, timeline.Messages(roomID))
	fmt.Fprintln(out, color.Gray.Sprintf("online: %v", timeline.Online()))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if _, err := live.Post(roomID, line); err != nil {
				return err
			}
		case frame, ok := <-live.Frames():
			if !ok {
				return live.Err()
			}
			if err := ws.FrameError(frame); err != nil {
				fmt.Fprintln(out, color.Red.Render(err.Error()))
				continue
			}
			e, err := ws.ToEvent(frame)
			if err != nil {
				continue
			}
			before := timeline.LastSequence(roomID)
			_ = timeline.Consume(ctx, e)
			renderFrame(out, frame, roomID, before, timeline)
		}
	}
}

func renderFrame(out io.Writer, frame ws.Frame, roomID domain.RoomID, before int64, timeline *projection.Timeline) {
	switch frame.Type {
	case ws.TypeNewMessage:
		last := timeline.LastSequence(roomID)
		if last == before {
			return
		}
		messages := timeline.Messages(roomID)
		printLine(out, messages[len(messages)-1])
	case ws.TypeUserOnline, ws.TypeUserOffline:
		fmt.Fprintln(out, color.Gray.Sprintf("online: %v", timeline.Online()))
	case ws.TypeTypingStart, ws.TypeTypingStop:
		if typing := timeline.Typing(roomID); len(typing) > 0 {
			fmt.Fprintln(out, color.Gray.Sprintf("%v typing...", typing))
		}
	}
}

func printLine(out io.Writer, m domain.Message) {
	fmt.Fprintf(out, "%s %s %s\n",
		color.Gray.Sprintf("#%d %s", m.Sequence, m.CreatedAt.Local().Format("15:04:05")),
		color.Cyan.Sprint(string(m.SenderID)+":"),
		m.Content)
}

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetCenterSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	return table
}

func printRooms(out io.Writer, rooms ...api.Room) {
	table := newTable(out, "ID", "Kind", "Name", "Participants", "Last")
	for _, r := range rooms {
		table.Append([]string{r.ID, r.Kind, r.Name, strings.Join(r.Participants, ","), strconv.FormatInt(r.LastSequence, 10)})
	}
	table.Render()
}

func printUsers(out io.Writer, users ...api.User) {
	table := newTable(out, "ID", "Name", "Status")
	for _, u := range users {
		status := color.Gray.Sprint("offline")
		if u.Online {
			status = color.Green.Sprint("online")
		}
		table.Append([]string{u.ID, u.DisplayName, status})
	}
	table.Render()
}

func printMessages(out io.Writer, messages []domain.Message) {
	for _, m := range messages {
		printLine(out, m)
	}
}

func printStats(out io.Writer, stats *api.StatsResponse) {
	table := newTable(out, "Metric", "Value")
	table.Append([]string{"sessions", strconv.Itoa(stats.Sessions)})
	table.Append([]string{"online_users", strconv.Itoa(stats.OnlineUsers)})
	table.Append([]string{"active_rooms", strconv.Itoa(stats.ActiveRooms)})
	table.Append([]string{"pending_presence", strconv.Itoa(stats.PendingPresence)})
	names := lo.Keys(stats.Counters)
	slices.Sort(names)
	for _, name := range names {
		table.Append([]string{name, strconv.FormatUint(stats.Counters[name], 10)})
	}
	table.Render()
}
