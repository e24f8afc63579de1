// chatcli is the manual end-to-end harness for the client stack: login via
// the REST layer, persist the token, then hold a live session against the
// realtime backend.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xexgm/chatlink/config"
	"github.com/xexgm/chatlink/logger"
	"github.com/xexgm/chatlink/service/chat"
	"github.com/xexgm/chatlink/service/rest"
	"github.com/xexgm/chatlink/service/session"
	"github.com/xexgm/chatlink/service/storage"
)

func main() {
	defer logger.Sync()
	if err := rootCmd().Execute(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chatlink",
		Short:         "Client for the realtime chat backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(loginCmd(), roomsCmd(), chatCmd())
	return cmd
}

func tokenStore(cfg *config.Client) (storage.TokenStore, error) {
	if cfg.RedisAddr != "" {
		return storage.NewRedisStore(storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}
	return storage.NewFileStore(cfg.TokenDir)
}

// restore loads the persisted token and rejects anything already expired,
// so startup never attempts session restoration with a dead token.
func restore(cfg *config.Client) (string, *storage.TokenClaims, error) {
	store, err := tokenStore(cfg)
	if err != nil {
		return "", nil, err
	}
	token, err := store.Load()
	if err != nil {
		return "", nil, err
	}
	if token == "" {
		return "", nil, fmt.Errorf("no stored token, run `chatlink login` first")
	}
	claims, err := storage.Inspect(token)
	if err != nil {
		return "", nil, err
	}
	if claims.Expired(time.Now()) {
		_ = store.Clear()
		return "", nil, fmt.Errorf("stored token expired, run `chatlink login` again")
	}
	return token, claims, nil
}

func loginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and persist the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			client := rest.New(rest.Config{BaseURL: cfg.APIBaseURL})
			resp, err := client.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			store, err := tokenStore(cfg)
			if err != nil {
				return err
			}
			if err := store.Save(resp.Token); err != nil {
				return err
			}
			fmt.Printf("logged in as %s (uid=%d)\n", resp.User.Nickname, resp.User.UserID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func roomsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List the chat rooms visible to this account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, _, err := restore(cfg)
			if err != nil {
				return err
			}
			client := rest.New(rest.Config{BaseURL: cfg.APIBaseURL})
			client.SetToken(token)
			rooms, err := client.ListChatRooms(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range rooms {
				fmt.Printf("%6d  %-12s %s\n", r.RoomID, r.RoomType, r.RoomName)
			}
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	var roomID int64
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join a room and chat from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, claims, err := restore(cfg)
			if err != nil {
				return err
			}

			client := rest.New(rest.Config{BaseURL: cfg.APIBaseURL})
			client.SetToken(token)

			sess := session.New(session.Config{Endpoint: cfg.WSEndpoint})
			defer sess.Close()

			store := chat.NewStore(chat.Config{
				UID:    claims.UID,
				Token:  token,
				Sender: sess,
				API:    client,
			})
			detach := store.Attach(sess)
			defer detach()

			gone := make(chan struct{})
			sess.On(session.EventReconnectExhausted, func(session.Event) { close(gone) })
			sess.On(session.EventRoomMessage, func(ev session.Event) {
				e, ok := ev.(session.RoomMessage)
				if !ok || e.Env.UID == claims.UID || e.Env.Content == nil {
					return
				}
				name := fmt.Sprintf("uid:%d", e.Env.UID)
				if u, ok := store.UserFor(e.Env.UID); ok {
					name = u.Nickname
				}
				fmt.Printf("[%s] %s\n", name, *e.Env.Content)
			})

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			if err := sess.Connect(ctx, session.Credentials{UID: claims.UID, Token: token}); err != nil {
				return err
			}
			if _, err := store.FetchRooms(cmd.Context()); err != nil {
				return err
			}
			if err := store.SetActiveRoom(roomID); err != nil {
				return err
			}
			fmt.Printf("joined room %d, type to chat, /quit to leave\n", roomID)

			lines := make(chan string)
			go func() {
				scanner := bufio.NewScanner(os.Stdin)
				for scanner.Scan() {
					lines <- scanner.Text()
				}
				close(lines)
			}()

			for {
				select {
				case <-gone:
					return fmt.Errorf("connection lost and reconnect attempts exhausted")
				case line, ok := <-lines:
					if !ok || strings.TrimSpace(line) == "/quit" {
						return store.ClearActiveRoom()
					}
					if strings.TrimSpace(line) == "" {
						continue
					}
					if _, err := store.SendMessage(line); err != nil {
						logger.Warnf("send failed: %v", err)
					}
				}
			}
		},
	}
	cmd.Flags().Int64Var(&roomID, "room", 0, "room id to join")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}
