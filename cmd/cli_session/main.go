package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"story-identity/internal/app"
	"story-identity/internal/config"
	"story-identity/internal/domain"
	"story-identity/internal/service"
)

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	if err := a.Manager.Init(ctx); err != nil {
		fmt.Printf("session check failed: %v\n", err)
	}

	fmt.Println("===== Session Console =====")
	fmt.Println("commands: status | login | signup | logout | oauth | reset | password | refresh | clear | quit")
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimSpace(line)

		switch cmd {
		case "status":
		case "login":
			email := prompt(reader, "email")
			password := prompt(reader, "password")
			_, err = a.Manager.Login(ctx, email, password)
		case "signup":
			email := prompt(reader, "email")
			password := prompt(reader, "password")
			name := prompt(reader, "name")
			_, err = a.Manager.Signup(ctx, email, password, name)
			if err == nil && a.Local != nil && !cfg.AutoConfirm {
				a.Local.ConfirmEmail(email)
				fmt.Println("(local gateway) email confirmed")
			}
		case "logout":
			err = a.Manager.Logout(ctx)
		case "oauth":
			var target string
			target, err = a.Manager.LoginWithOAuth(ctx, prompt(reader, "provider"))
			if err == nil {
				fmt.Printf("open %s\n", target)
			}
		case "reset":
			err = a.Manager.ResetPassword(ctx, prompt(reader, "email"))
		case "password":
			err = a.Manager.UpdatePassword(ctx, prompt(reader, "new password"))
		case "refresh":
			err = a.Manager.RefreshIdentity(ctx)
		case "clear":
			a.Manager.ClearError()
		case "quit", "exit":
			return
		case "":
			continue
		default:
			fmt.Printf("unknown command %q\n", cmd)
			continue
		}

		a.Manager.Wait()
		if err != nil {
			var vErr *service.ValidationError
			if errors.As(err, &vErr) {
				fmt.Printf("invalid %s: %s\n", vErr.Field, vErr.Message)
			} else {
				fmt.Printf("error: %v\n", err)
			}
		}
		for _, n := range a.Outbox.Drain() {
			fmt.Printf("[%s] %s%s\n", n.Level, n.Message, n.Target)
		}
		printState(a.Manager.Phase(), a.Manager.State())
	}
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Printf("%s: ", label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func printState(phase service.Phase, state domain.IdentityState) {
	fmt.Printf("phase=%s loading=%t initialized=%t\n", phase, state.IsLoading, state.IsInitialized)
	if state.User != nil {
		fmt.Printf("user=%s <%s>\n", state.User.ID, state.User.Email)
	}
	if state.Profile != nil {
		fmt.Printf("profile=%s\n", state.Profile.Name)
	}
	fmt.Printf("tier=%s subscribed=%t trialing=%t\n", state.SubscriptionTier(), state.IsSubscribed(), state.IsTrialing())
	if state.Error != "" {
		fmt.Printf("error=%q\n", state.Error)
	}
}
