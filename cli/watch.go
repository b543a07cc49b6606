package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yeremiapane/restaurant-orders/client/api"
	"github.com/yeremiapane/restaurant-orders/client/events"
	"github.com/yeremiapane/restaurant-orders/client/readmodel"
	"github.com/yeremiapane/restaurant-orders/client/session"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/utils"
)

type watchOptions struct {
	baseURL  string
	wsURL    string
	email    string
	password string
	guestID  string
	guest    bool
	sort     string
	logLevel string
}

func watchCmd() *cobra.Command {
	var opts watchOptions
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the live order views of one role from the terminal",
		Long: `watch logs in (or joins as a guest), loads the views of the role and
prints every change pushed over the websocket until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.guest && opts.guestID == "" {
				opts.guestID = uuid.NewString()
			}
			if opts.email == "" && opts.guestID == "" {
				return errors.New("either --email/--password or --guest is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, opts, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.baseURL, "url", "http://localhost:8080", "base URL of the API")
	f.StringVar(&opts.wsURL, "ws", "", "websocket URL (default derived from --url)")
	f.StringVar(&opts.email, "email", "", "staff or customer email")
	f.StringVar(&opts.password, "password", "", "password for --email")
	f.BoolVar(&opts.guest, "guest", false, "follow as a guest")
	f.StringVar(&opts.guestID, "guest-id", "", "reuse an existing guest id")
	f.StringVar(&opts.sort, "sort", "", "newest, oldest, fewest-items, most-items or prep-time")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level")
	return cmd
}

// socketURL maps http(s)://host/base to ws(s)://host/ws.
func socketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid --url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

func runWatch(ctx context.Context, opts watchOptions, out io.Writer) error {
	utils.InitLoggerWithLevel(opts.logLevel)
	log := utils.Component("watch")

	key, ok := readmodel.ParseSortKey(opts.sort)
	if opts.sort != "" && !ok {
		return fmt.Errorf("unknown sort %q", opts.sort)
	}
	wsURL := opts.wsURL
	if wsURL == "" {
		derived, err := socketURL(opts.baseURL)
		if err != nil {
			return err
		}
		wsURL = derived
	}

	s := session.New(session.Config{
		BaseURL:   opts.baseURL,
		SocketURL: wsURL,
		Notifier: events.NotifierFunc(func(n events.Notice) {
			fmt.Fprintf(out, "[%s] %s\n", n.Kind, noticeText(n))
		}),
	})

	identity := models.Identity{GuestID: opts.guestID}
	var token string
	if opts.email != "" {
		res, err := s.API.Login(ctx, opts.email, opts.password)
		if isUnauthorized(err) {
			return errors.New("login: wrong email or password")
		}
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		identity = models.Identity{UserID: res.UserID, Role: res.Role}
		token = res.Token
	}

	defer s.Teardown()
	if err := s.Init(ctx, identity, token); err != nil {
		return err
	}

	unsubscribe := s.Store.Subscribe(func(c readmodel.Change) {
		entry := log.WithField("orderId", c.ID)
		if c.Removed {
			entry.Info("order removed")
			return
		}
		entry.WithFields(logrus.Fields{
			"orderNumber": c.Order.OrderNumber,
			"status":      c.Order.Status,
			"payment":     c.Order.PaymentStatus,
			"revision":    c.Order.Revision,
		}).Info("order changed")
	})
	defer unsubscribe()

	for _, v := range s.Views() {
		printView(out, v, key)
	}

	<-ctx.Done()
	return nil
}

func printView(out io.Writer, v *readmodel.View, key readmodel.SortKey) {
	st := v.State()
	fmt.Fprintf(out, "== %s (%s)\n", v.Name, st.LastSuccessMessage)
	if st.Error != "" {
		fmt.Fprintf(out, "   error: %s\n", st.Error)
	}
	for _, o := range v.List(readmodel.Filter{}, key) {
		fmt.Fprintf(out, "   %-22s %-10s %-9s %s\n", o.OrderNumber, o.Status, o.PaymentStatus, o.CustomerInfo.Name)
	}
}

func noticeText(n events.Notice) string {
	if n.Title == "" {
		return n.Message
	}
	return n.Title + ": " + n.Message
}

func isUnauthorized(err error) bool {
	return api.IsStatus(err, http.StatusUnauthorized)
}
