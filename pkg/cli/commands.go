package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/mindfulmate/mindful/pkg/credits"
)

func (e *env) command(name, desc string, run func(ctx context.Context, cf *commonFlags, fs *flag.FlagSet) error) *Command {
	cmd := &Command{
		Name:        name,
		Description: desc,
		Flags:       flag.NewFlagSet(name, flag.ContinueOnError),
	}
	cf := &commonFlags{}
	cf.register(cmd.Flags)
	cmd.Flags.SetOutput(e.io.Err)

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return run(ctx, cf, cmd.Flags)
	}
	return cmd
}

func (e *env) newBalanceCommand() *Command {
	return e.command("balance", "Show remaining messages", func(ctx context.Context, cf *commonFlags, _ *flag.FlagSet) error {
		s, err := e.newSession(cf)
		if err != nil {
			return err
		}
		if _, err := s.gate.Balance(ctx); err != nil {
			return explain(err)
		}
		s.printBalance()
		return nil
	})
}

func (e *env) newHistoryCommand() *Command {
	return e.command("history", "Print the conversation", func(ctx context.Context, cf *commonFlags, _ *flag.FlagSet) error {
		s, err := e.newSession(cf)
		if err != nil {
			return err
		}
		msgs, err := s.gate.Refresh(ctx)
		if err != nil {
			return explain(err)
		}
		s.printHistory(msgs)
		return nil
	})
}

func (e *env) newSendCommand() *Command {
	return e.command("send", "Send a message to the expert", func(ctx context.Context, cf *commonFlags, fs *flag.FlagSet) error {
		s, err := e.newSession(cf)
		if err != nil {
			return err
		}
		if _, err := s.gate.Balance(ctx); err != nil {
			return explain(err)
		}

		msg, err := s.gate.TrySend(ctx, strings.Join(fs.Args(), " "))
		if err != nil {
			return explain(err)
		}
		fmt.Fprintln(s.out, formatMessage(*msg))
		s.printBalance()
		return nil
	})
}

func (e *env) newBuyCommand() *Command {
	return e.command("buy", "Buy more messages", func(ctx context.Context, cf *commonFlags, fs *flag.FlagSet) error {
		if fs.NArg() != 1 {
			return errors.New("usage: mindful buy <number of messages>")
		}
		s, err := e.newSession(cf)
		if err != nil {
			return err
		}

		intent, err := s.gate.QuoteInput(fs.Arg(0))
		if err != nil {
			return explain(err)
		}
		fmt.Fprintf(s.out, "%d messages x Rs. %d = Rs. %d\n", intent.RequestedCredits, intent.UnitPrice, intent.TotalPrice)

		if _, err := s.gate.Purchase(ctx, intent.RequestedCredits); err != nil {
			return explain(err)
		}
		fmt.Fprintln(s.out, "After paying, run `mindful return <url>` with the address you were sent back to.")
		return nil
	})
}

func (e *env) newReturnCommand() *Command {
	return e.command("return", "Finish a purchase using the payment return URL", func(ctx context.Context, cf *commonFlags, fs *flag.FlagSet) error {
		if fs.NArg() != 1 {
			return errors.New("usage: mindful return <url>")
		}
		target, err := url.Parse(fs.Arg(0))
		if err != nil {
			return fmt.Errorf("invalid url: %w", err)
		}
		s, err := e.newSession(cf)
		if err != nil {
			return err
		}
		if err := s.returnFrom(ctx, target); err != nil {
			return err
		}
		s.printBalance()
		return nil
	})
}

// returnFrom points the session at a payment return URL and reconciles it.
// The balance is fetched once: by Reconcile when the URL carries a payment
// reference, directly otherwise.
func (s *session) returnFrom(ctx context.Context, target *url.URL) error {
	s.loc.Replace(target)

	if token := s.gate.CallbackToken(); token == "" {
		fmt.Fprintln(s.out, "No payment reference in that URL; showing your current balance.")
	}
	if status := target.Query().Get("payment"); status != "" {
		fmt.Fprintf(s.out, "Payment %s.\n", status)
	}

	found, err := s.gate.Reconcile(ctx)
	if err != nil {
		return explain(err)
	}
	if !found {
		if _, err := s.gate.Balance(ctx); err != nil {
			return explain(err)
		}
	}
	s.log.WithField("location", s.loc.Current().String()).Debug("payment reference consumed")
	return nil
}

func (e *env) newLoginCommand() *Command {
	return e.command("login", "Store a session token in the config file", func(_ context.Context, cf *commonFlags, fs *flag.FlagSet) error {
		if fs.NArg() != 1 {
			return errors.New("usage: mindful login <token>")
		}
		cfg, err := cf.resolve()
		if err != nil {
			return err
		}
		cfg.Token = fs.Arg(0)
		if err := SaveConfig(cf.configPath, cfg); err != nil {
			return err
		}
		fmt.Fprintf(e.io.Out, "Saved token to %s\n", cf.configPath)
		return nil
	})
}

func (e *env) newChatCommand() *Command {
	return e.command("chat", "Interactive conversation", func(ctx context.Context, cf *commonFlags, _ *flag.FlagSet) error {
		s, err := e.newSession(cf)
		if err != nil {
			return err
		}
		return s.chat(ctx, bufio.NewScanner(e.io.In))
	})
}

// chat runs the interactive loop. Messages print as they are appended and
// the balance line reprints whenever it changes.
func (s *session) chat(ctx context.Context, in *bufio.Scanner) error {
	printed := 0
	lastBalance := -1
	s.gate.Subscribe(func(snap credits.Snapshot) {
		if len(snap.Messages) < printed {
			printed = 0
		}
		for _, m := range snap.Messages[printed:] {
			fmt.Fprintln(s.out, formatMessage(m))
		}
		printed = len(snap.Messages)
		if snap.BalanceKnown && snap.MessagesLeft != lastBalance {
			lastBalance = snap.MessagesLeft
			fmt.Fprintf(s.out, "-- %d messages left --\n", snap.MessagesLeft)
		}
	})

	if err := s.gate.Mount(ctx); err != nil {
		fmt.Fprintln(s.out, explain(err))
	}
	fmt.Fprintln(s.out, "Type a message, or /buy <n>, /return <url>, /balance, /history, /quit")

	for in.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := in.Text()
		cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")

		var err error
		switch cmd {
		case "/quit", "/exit":
			return nil
		case "/balance":
			_, err = s.gate.Balance(ctx)
			if err == nil {
				s.printBalance()
			}
		case "/history":
			printed = 0
			_, err = s.gate.Refresh(ctx)
		case "/buy":
			_, err = s.gate.PurchaseInput(ctx, arg)
		case "/return":
			var target *url.URL
			target, err = url.Parse(strings.TrimSpace(arg))
			if err != nil || target.String() == "" {
				fmt.Fprintln(s.out, "usage: /return <url>")
				continue
			}
			err = s.returnFrom(ctx, target)
		default:
			_, err = s.gate.TrySend(ctx, line)
		}
		if err != nil {
			fmt.Fprintln(s.out, explain(err))
		}
	}
	return in.Err()
}
