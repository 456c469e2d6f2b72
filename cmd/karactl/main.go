// Package main provides the karabox command line client.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/karabox/internal/app/notification"
	"github.com/osa030/karabox/internal/app/session"
	"github.com/osa030/karabox/internal/domain/karaoke"
	"github.com/osa030/karabox/internal/domain/player"
	"github.com/osa030/karabox/internal/domain/playlist"
)

var (
	app    = kingpin.New("karactl", "karabox karaoke client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Access token (or set KARA_TOKEN env)").Envar("KARA_TOKEN").String()

	// status command
	statusCmd = app.Command("status", "Show the session digest")

	// queue command
	queueCmd = app.Command("queue", "List queued entries with their play time").Alias("ls")

	// played command
	playedCmd = app.Command("played", "List played entries")

	// enqueue command
	enqueueCmd          = app.Command("enqueue", "Add a song to the playlist").Alias("add")
	enqueueSong         = enqueueCmd.Arg("song-id", "Song ID").Required().String()
	enqueueInstrumental = enqueueCmd.Flag("instrumental", "Sing on the instrumental version").Bool()

	// move command
	moveCmd    = app.Command("move", "Move a queued entry")
	moveEntry  = moveCmd.Arg("entry-id", "Entry to move").Required().String()
	moveBefore = moveCmd.Flag("before", "Place before this entry").String()
	moveAfter  = moveCmd.Flag("after", "Place after this entry").String()

	// remove command
	removeCmd   = app.Command("remove", "Remove a queued entry").Alias("rm")
	removeEntry = removeCmd.Arg("entry-id", "Entry to remove").Required().String()

	// karaoke command
	karaokeCmd = app.Command("karaoke", "Show or change the session flags")

	karaokeShowCmd = karaokeCmd.Command("show", "Show the session flags").Default()

	karaokeSetCmd = karaokeCmd.Command("set", "Change the session flags")
	setOngoing    = karaokeSetCmd.Flag("ongoing", "Karaoke is ongoing (--no-ongoing stops it)").IsSetByUser(&ongoingSet).Bool()
	setCanAdd     = karaokeSetCmd.Flag("can-add", "Users may add songs").IsSetByUser(&canAddSet).Bool()
	setPlayNext   = karaokeSetCmd.Flag("play-next", "Player chains the next song").IsSetByUser(&playNextSet).Bool()
	setStopAt     = karaokeSetCmd.Flag("stop-at", "Stop date (RFC 3339)").String()
	setClearStop  = karaokeSetCmd.Flag("clear-stop", "Remove the stop date").Bool()

	// Set when the flag appears on the command line, negated or not
	ongoingSet, canAddSet, playNextSet bool

	// player commands
	playCmd  = app.Command("play", "Resume the player")
	pauseCmd = app.Command("pause", "Pause the player")
	skipCmd  = app.Command("skip", "Skip the current song")

	// errors command
	errorsCmd = app.Command("errors", "List player errors")

	// watch command
	watchCmd = app.Command("watch", "Print session events as they happen")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		fmt.Println("Error: token is required (use --token or KARA_TOKEN env)")
		os.Exit(1)
	}

	c := newClient(*server, *token)
	ctx := context.Background()

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = status(ctx, c)
	case queueCmd.FullCommand():
		err = queue(ctx, c)
	case playedCmd.FullCommand():
		err = played(ctx, c)
	case enqueueCmd.FullCommand():
		err = enqueue(ctx, c, *enqueueSong, *enqueueInstrumental)
	case moveCmd.FullCommand():
		err = move(ctx, c, *moveEntry, *moveBefore, *moveAfter)
	case removeCmd.FullCommand():
		err = remove(ctx, c, *removeEntry)
	case karaokeShowCmd.FullCommand():
		err = showKaraoke(ctx, c)
	case karaokeSetCmd.FullCommand():
		err = setKaraoke(ctx, c)
	case playCmd.FullCommand():
		err = sendCommand(ctx, c, player.CommandPlay)
	case pauseCmd.FullCommand():
		err = sendCommand(ctx, c, player.CommandPause)
	case skipCmd.FullCommand():
		err = sendCommand(ctx, c, player.CommandSkip)
	case errorsCmd.FullCommand():
		err = listErrors(ctx, c)
	case watchCmd.FullCommand():
		err = watch(ctx, c)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func status(ctx context.Context, c *client) error {
	var d session.Digest
	if err := c.do(ctx, http.MethodGet, "/playlist/digest", nil, &d); err != nil {
		return err
	}

	fmt.Println("\n=== CURRENT SESSION STATUS ===")
	printKaraoke(d.Karaoke)

	fmt.Println("\nPlayer:")
	if d.PlayerEntry != nil {
		fmt.Printf("  Playing: %s\n", formatEntry(*d.PlayerEntry))
		fmt.Printf("  Timing: %s / %s\n", d.PlayerStatus.Timing.Round(time.Second), d.PlayerEntry.Song.Duration)
		fmt.Printf("  Paused: %v\n", d.PlayerStatus.Paused)
		fmt.Printf("  In Transition: %v\n", d.PlayerStatus.InTransition)
	} else {
		fmt.Println("  Idle")
	}
	if d.PlayerManage != nil {
		fmt.Printf("  Pending Command: %s (%s)\n", d.PlayerManage.Kind, d.PlayerManage.Date.Local().Format(time.Kitchen))
	}
	if len(d.PlayerErrors) > 0 {
		fmt.Printf("  Errors: %d\n", len(d.PlayerErrors))
	}

	fmt.Printf("\nQueue Size: %d\n", len(d.Playlist.Entries))
	if len(d.Playlist.Entries) > 0 {
		fmt.Printf("Queue Ends: %s\n", d.Playlist.DateEnd.Local().Format(time.Kitchen))
	}
	fmt.Println()
	return nil
}

func queue(ctx context.Context, c *client) error {
	var s playlist.Schedule
	if err := c.do(ctx, http.MethodGet, "/playlist/entries", nil, &s); err != nil {
		return err
	}

	fmt.Printf("Queue (%d):\n", len(s.Entries))
	for _, e := range s.Entries {
		fmt.Printf("  %s  %s\n", e.DatePlay.Local().Format(time.Kitchen), formatEntry(e.Entry))
	}
	if len(s.Entries) > 0 {
		fmt.Printf("Ends at %s\n", s.DateEnd.Local().Format(time.Kitchen))
	}
	return nil
}

func played(ctx context.Context, c *client) error {
	var resp struct {
		Results []playlist.Entry `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/playlist/played-entries", nil, &resp); err != nil {
		return err
	}

	fmt.Printf("Played (%d):\n", len(resp.Results))
	for _, e := range resp.Results {
		at := ""
		if e.DatePlayed != nil {
			at = e.DatePlayed.Local().Format(time.Kitchen)
		}
		fmt.Printf("  %s  %s\n", at, formatEntry(e))
	}
	return nil
}

func enqueue(ctx context.Context, c *client, songID string, instrumental bool) error {
	var e playlist.Entry
	body := map[string]any{"song_id": songID, "use_instrumental": instrumental}
	if err := c.do(ctx, http.MethodPost, "/playlist/entries", body, &e); err != nil {
		return err
	}
	fmt.Printf("Queued: %s\n", formatEntry(e))
	return nil
}

func move(ctx context.Context, c *client, id, before, after string) error {
	if (before == "") == (after == "") {
		return fmt.Errorf("exactly one of --before and --after is required")
	}
	body := map[string]string{}
	if before != "" {
		body["before_id"] = before
	} else {
		body["after_id"] = after
	}
	if err := c.do(ctx, http.MethodPut, "/playlist/entries/"+id, body, nil); err != nil {
		return err
	}
	fmt.Println("Entry moved")
	return nil
}

func remove(ctx context.Context, c *client, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/playlist/entries/"+id, nil, nil); err != nil {
		return err
	}
	fmt.Println("Entry removed")
	return nil
}

func showKaraoke(ctx context.Context, c *client) error {
	var k karaoke.Karaoke
	if err := c.do(ctx, http.MethodGet, "/playlist/karaoke", nil, &k); err != nil {
		return err
	}
	printKaraoke(k)
	return nil
}

func setKaraoke(ctx context.Context, c *client) error {
	body := map[string]any{}
	if ongoingSet {
		body["ongoing"] = *setOngoing
	}
	if canAddSet {
		body["can_add_to_playlist"] = *setCanAdd
	}
	if playNextSet {
		body["player_play_next_song"] = *setPlayNext
	}
	switch {
	case *setClearStop && *setStopAt != "":
		return fmt.Errorf("--stop-at and --clear-stop are exclusive")
	case *setClearStop:
		body["date_stop"] = nil
	case *setStopAt != "":
		at, err := time.Parse(time.RFC3339, *setStopAt)
		if err != nil {
			return fmt.Errorf("invalid --stop-at: %w", err)
		}
		body["date_stop"] = at
	}
	if len(body) == 0 {
		return fmt.Errorf("nothing to change")
	}

	var k karaoke.Karaoke
	if err := c.do(ctx, http.MethodPatch, "/playlist/karaoke", body, &k); err != nil {
		return err
	}
	printKaraoke(k)
	return nil
}

func sendCommand(ctx context.Context, c *client, kind player.CommandKind) error {
	body := map[string]string{"command": string(kind)}
	if err := c.do(ctx, http.MethodPut, "/playlist/player/command", body, nil); err != nil {
		return err
	}
	fmt.Printf("Command sent: %s\n", kind)
	return nil
}

func listErrors(ctx context.Context, c *client) error {
	var resp struct {
		Results []playlist.PlayerError `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/playlist/player/errors", nil, &resp); err != nil {
		return err
	}

	fmt.Printf("Player errors (%d):\n", len(resp.Results))
	for _, e := range resp.Results {
		fmt.Printf("  %s  entry=%s  %s\n", e.DateCreated.Local().Format(time.Kitchen), e.EntryID, e.Message)
	}
	return nil
}

func watch(ctx context.Context, c *client) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Println("Watching session events. Press Ctrl+C to exit.")

	// Handle shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nDisconnecting...")
		_ = conn.Close()
	}()

	for {
		var ev struct {
			Type       string          `json:"type"`
			Data       json.RawMessage `json:"data"`
			Date       time.Time       `json:"date"`
			SequenceNo uint64          `json:"sequence_no"`
		}
		if err := conn.ReadJSON(&ev); err != nil {
			return nil
		}
		printEvent(ev.SequenceNo, ev.Type, ev.Date, ev.Data)
	}
}

func printEvent(seq uint64, eventType string, at time.Time, data json.RawMessage) {
	fmt.Printf("[%d %s] ", seq, at.Local().Format(time.TimeOnly))

	switch eventType {
	case notification.TypeKaraoke:
		var k karaoke.Karaoke
		if err := json.Unmarshal(data, &k); err == nil {
			fmt.Printf("karaoke ongoing=%v can_add=%v play_next=%v\n", k.Ongoing, k.CanAddToPlaylist, k.PlayerPlayNextSong)
			return
		}
	case notification.TypePlayerStatus:
		var s player.Status
		if err := json.Unmarshal(data, &s); err == nil {
			if s.IsIdle() {
				fmt.Println("player idle")
			} else {
				fmt.Printf("player entry=%s timing=%s paused=%v\n", s.EntryID, s.Timing.Round(time.Second), s.Paused)
			}
			return
		}
	case notification.TypePlaylist:
		var s playlist.Schedule
		if err := json.Unmarshal(data, &s); err == nil {
			fmt.Printf("playlist changed: %d queued\n", len(s.Entries))
			return
		}
	case notification.TypePlayerError:
		var e playlist.PlayerError
		if err := json.Unmarshal(data, &e); err == nil {
			fmt.Printf("player error entry=%s: %s\n", e.EntryID, e.Message)
			return
		}
	}
	fmt.Printf("%s %s\n", eventType, data)
}

func printKaraoke(k karaoke.Karaoke) {
	fmt.Println("Karaoke:")
	fmt.Printf("  Ongoing: %v\n", k.Ongoing)
	fmt.Printf("  Can Add To Playlist: %v\n", k.CanAddToPlaylist)
	fmt.Printf("  Player Plays Next Song: %v\n", k.PlayerPlayNextSong)
	if k.DateStop != nil {
		fmt.Printf("  Stops At: %s\n", k.DateStop.Local().Format(time.RFC3339))
	}
}

func formatEntry(e playlist.Entry) string {
	s := fmt.Sprintf("%s  %s", e.ID, e.Song.Title)
	if e.Song.Artist != "" {
		s += " - " + e.Song.Artist
	}
	s += fmt.Sprintf(" (%s, by %s)", e.Song.Duration, e.OwnerName)
	if e.UseInstrumental {
		s += " [instrumental]"
	}
	return s
}
